package credential

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return tok
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	return signToken(t, jwt.MapClaims{
		"sub":      "ana@example.com",
		"role":     "ADMIN",
		"tenantId": "7",
		"sid":      "s-1",
		"iat":      exp.Add(-time.Hour).Unix(),
		"exp":      exp.Unix(),
	})
}

func newTestStore(clock clockwork.Clock, storage Storage) *Store {
	return NewStore(Options{Clock: clock, Storage: storage})
}

func TestDecodeClaims(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	c, ok := DecodeClaims(tokenExpiringAt(t, exp))
	require.True(t, ok)
	assert.Equal(t, Claims{
		Subject:   "ana@example.com",
		Role:      "ADMIN",
		TenantID:  "7",
		SessionID: "s-1",
		IssuedAt:  exp.Add(-time.Hour).Unix(),
		ExpiresAt: exp.Unix(),
	}, c)
}

func TestDecodeClaims_OnlyPayloadMatters(t *testing.T) {
	payload := `{"sub":"7","exp":4102444800}`
	raw := base64.RawURLEncoding.EncodeToString([]byte(payload))
	padded := base64.URLEncoding.EncodeToString([]byte(payload))
	require.Contains(t, padded, "=")
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	cases := map[string]string{
		"header without alg": enc(`{"typ":"JWT"}`) + "." + raw + ".sig",
		"unknown alg":        enc(`{"alg":"XYZ"}`) + "." + raw + ".sig",
		"header not json":    enc("not json") + "." + raw + ".sig",
		"padded payload":     enc(`{"alg":"HS256"}`) + "." + padded + ".sig",
		"empty signature":    enc(`{"alg":"none"}`) + "." + raw + ".",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			c, ok := DecodeClaims(tok)
			require.True(t, ok)
			assert.Equal(t, "7", c.Subject)
			assert.Equal(t, int64(4102444800), c.ExpiresAt)
		})
	}
}

func TestDecodeClaims_Malformed(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))

	cases := map[string]string{
		"empty":             "",
		"one segment":       "abc",
		"two segments":      header + ".eyJleHAiOjF9",
		"four segments":     header + ".e30.sig.extra",
		"invalid base64":    header + ".!!!@@@.sig",
		"non json payload":  header + "." + notJSON + ".sig",
		"exp wrong type":    header + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"soon"}`)) + ".sig",
		"whitespace only":   "   ",
		"dots only":         "..",
		"payload is array":  header + "." + base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`)) + ".sig",
		"empty payload":     header + "..sig",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, ok := DecodeClaims(tok)
				assert.False(t, ok)
			})
		})
	}
}

func TestStore_IsExpired_SafetyMarginBoundary(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_800_000_000, 0))
	s := newTestStore(clock, nil)

	s.Save(tokenExpiringAt(t, clock.Now().Add(60*time.Second)), nil)
	assert.True(t, s.IsExpired(), "exp == now+60 is inside the margin")

	s.Save(tokenExpiringAt(t, clock.Now().Add(61*time.Second)), nil)
	assert.False(t, s.IsExpired(), "exp == now+61 is still usable")

	clock.Advance(time.Second)
	assert.True(t, s.IsExpired())
}

func TestStore_IsExpired_NoTokenOrNoExp(t *testing.T) {
	s := newTestStore(clockwork.NewFakeClock(), nil)
	assert.True(t, s.IsExpired())
	assert.Equal(t, int64(-1), s.SecondsRemaining())

	s.Save(signToken(t, jwt.MapClaims{"sub": "x"}), nil)
	assert.True(t, s.IsExpired(), "missing exp counts as expired")
	assert.Equal(t, int64(-1), s.SecondsRemaining())

	s.Save("garbage", nil)
	tok, ok := s.Token()
	assert.True(t, ok)
	assert.Equal(t, "garbage", tok)
	assert.True(t, s.IsExpired())
}

func TestStore_SecondsRemaining(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_800_000_000, 0))
	s := newTestStore(clock, nil)
	s.Save(tokenExpiringAt(t, clock.Now().Add(3600*time.Second)), nil)
	assert.Equal(t, int64(3600), s.SecondsRemaining())

	clock.Advance(4000 * time.Second)
	assert.Equal(t, int64(0), s.SecondsRemaining())
}

func TestStore_SaveClearToken(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(clockwork.NewFakeClock(), storage)

	s.Save("a.b.c", &User{ID: 1})
	s.Clear()
	_, ok := s.Token()
	assert.False(t, ok)

	tok, user, err := storage.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.Empty(t, user)

	// idempotent
	require.NotPanics(t, s.Clear)
}

func TestStore_RehydratesAfterReload(t *testing.T) {
	clock := clockwork.NewFakeClock()
	storage := NewMemoryStorage()
	tok := tokenExpiringAt(t, clock.Now().Add(time.Hour))

	first := newTestStore(clock, storage)
	first.Save(tok, &User{ID: 9, DisplayName: "Ana", Role: "ADMIN", CompanyID: 3})

	reloaded := newTestStore(clock, storage)
	got, ok := reloaded.Token()
	require.True(t, ok)
	assert.Equal(t, tok, got)

	u, ok := reloaded.PersistedUser()
	require.True(t, ok)
	assert.Equal(t, "Ana", u.DisplayName)
	assert.False(t, reloaded.IsExpired())

	c, ok := reloaded.Claims()
	require.True(t, ok)
	assert.Equal(t, "ADMIN", c.Role)
}

func TestStore_StorageUnavailableDegradesToMemory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestStore(clock, UnavailableStorage{})
	tok := tokenExpiringAt(t, clock.Now().Add(time.Hour))

	require.NotPanics(t, func() { s.Save(tok, &User{ID: 1}) })
	got, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, tok, got)

	require.NotPanics(t, s.Clear)
	_, ok = s.Token()
	assert.False(t, ok)
}

func TestStore_PersistedUserIsACopy(t *testing.T) {
	s := newTestStore(clockwork.NewFakeClock(), nil)
	s.Save("a.b.c", &User{ID: 1, DisplayName: "Ana"})

	u, ok := s.PersistedUser()
	require.True(t, ok)
	u.DisplayName = "changed"

	again, _ := s.PersistedUser()
	assert.Equal(t, "Ana", again.DisplayName)
}

func TestStore_Subscribe(t *testing.T) {
	s := newTestStore(clockwork.NewFakeClock(), nil)
	var events []Event
	unsubscribe := s.Subscribe(func(e Event) {
		// a read from inside the callback must not deadlock
		_, _ = s.Token()
		events = append(events, e)
	})

	s.Save("a.b.c", nil)
	s.Clear()
	s.Clear() // nothing held, no event
	unsubscribe()
	s.Save("a.b.c", nil)

	assert.Equal(t, []Event{EventSaved, EventCleared}, events)
}
