package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/credential"
	"github.com/ovaphlow/pitchfork/client-session-go/pkg/database"
)

func openTestDB(t *testing.T) *SQLStorage {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver:   database.DriverSQLite,
		DSN:      ":memory:",
		MaxConns: 1,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStorage(db, "tab-a")
	require.NoError(t, s.EnsureTable(context.Background()))
	return s
}

func TestSQLStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)

	tok, user, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.Empty(t, user)

	require.NoError(t, s.Store(ctx, "t1", `{"id":1}`))
	require.NoError(t, s.Store(ctx, "t2", `{"id":2}`))

	tok, user, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t2", tok)
	assert.Equal(t, `{"id":2}`, user)

	require.NoError(t, s.Clear(ctx))
	tok, _, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestSQLStorage_TabsAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t)
	b := NewSQLStorage(a.db, "tab-b")

	require.NoError(t, a.Store(ctx, "token-a", ""))
	require.NoError(t, b.Store(ctx, "token-b", ""))
	require.NoError(t, b.Clear(ctx))

	tok, _, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-a", tok)
}

func TestSQLStorage_BacksCredentialStore(t *testing.T) {
	s := openTestDB(t)
	store := credential.NewStore(credential.Options{Storage: s})
	store.Save("a.b.c", &credential.User{ID: 4, DisplayName: "Luis"})

	reloaded := credential.NewStore(credential.Options{Storage: s})
	u, ok := reloaded.PersistedUser()
	require.True(t, ok)
	assert.Equal(t, int64(4), u.ID)

	reloaded.Clear()
	fresh := credential.NewStore(credential.Options{Storage: s})
	_, ok = fresh.Token()
	assert.False(t, ok)
}
