package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/api"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/backend"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/credential"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/pipeline"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/platform"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/session"
)

type stack struct {
	clock   *clockwork.FakeClock
	dir     *backend.Directory
	handler *backend.Handler
	store   *credential.Store
	client  *api.Client
	gate    *session.Gate
	metrics *metrics.Metrics
	router  *platform.Router

	mu    sync.Mutex
	notes []string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{clock: clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))}

	s.dir = backend.NewDirectory(backend.BcryptHasher{Cost: bcrypt.MinCost})
	require.NoError(t, backend.SeedDemo(s.dir))
	tokens, err := backend.NewTokenService("test", time.Hour, s.clock)
	require.NoError(t, err)
	s.handler = backend.NewHandler(s.dir, tokens, nil)
	srv := httptest.NewServer(backend.RegisterRoutes(nil, s.handler, "/api"))
	t.Cleanup(srv.Close)

	s.router = platform.NewRouter(nil, "/dashboard", nil)
	notifier := platform.NotifierFunc(func(_ platform.Severity, msg string) {
		s.mu.Lock()
		s.notes = append(s.notes, msg)
		s.mu.Unlock()
	})
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.store = credential.NewStore(credential.Options{Clock: s.clock})
	p := pipeline.New(srv.Client(), s.store, pipeline.Options{
		BaseURL:        srv.URL + "/api",
		LoginRoute:     "/login",
		ExemptPaths:    []string{"/auth/login"},
		MaxRetries:     2,
		RetryBaseDelay: time.Second,
		Clock:          s.clock,
		Navigator:      s.router,
		Notifier:       notifier,
		Metrics:        s.metrics,
	})
	s.client = api.New(p, srv.URL+"/api")
	s.gate = session.NewGate(s.store, s.client, session.Options{
		LoginPath:   "/auth/login",
		ProfilePath: "/auth/me",
		LoginRoute:  "/login",
		HomeRoute:   "/dashboard",
		Navigator:   s.router,
		Metrics:     s.metrics,
	})
	t.Cleanup(s.gate.Close)
	return s
}

func (s *stack) notifications() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

func TestEndToEnd_LoginAndBrowse(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	u, err := s.gate.Login(ctx, "ventas@example.com", "ventas123")
	require.NoError(t, err)
	assert.Equal(t, "vendedor", u.Role)

	claims, ok := s.store.Claims()
	require.True(t, ok)
	assert.Equal(t, "1", claims.TenantID)
	assert.NotEmpty(t, claims.SessionID)
	assert.Equal(t, int64(3600), s.store.SecondsRemaining())

	var products []backend.Product
	require.NoError(t, s.client.Get(ctx, "/products", &products))
	assert.Len(t, products, 2)

	// a vendedor may not delete: 403 keeps the session
	err = s.client.Delete(ctx, "/products/1")
	assert.True(t, pipeline.IsForbidden(err))
	assert.True(t, s.gate.IsAuthenticated())
	assert.Equal(t, []string{pipeline.MsgForbidden}, s.notifications())

	s.clock.Advance(time.Hour)
	assert.False(t, s.gate.IsAuthenticated())
}

func TestEndToEnd_TransientFailuresRetried(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, err := s.gate.Login(ctx, "admin@example.com", "admin123")
	require.NoError(t, err)

	s.handler.FailNext(http.StatusServiceUnavailable, http.StatusBadGateway)

	done := make(chan error, 1)
	var products []backend.Product
	go func() { done <- s.client.Get(ctx, "/products", &products) }()

	require.NoError(t, s.clock.BlockUntilContext(ctx, 1))
	s.clock.Advance(time.Second)
	require.NoError(t, s.clock.BlockUntilContext(ctx, 1))
	s.clock.Advance(2 * time.Second)

	require.NoError(t, <-done)
	assert.Len(t, products, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.Retries))
	assert.Empty(t, s.notifications())
}

func TestEndToEnd_RevokedSessionEndsOnNextRequest(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, err := s.gate.Login(ctx, "admin@example.com", "admin123")
	require.NoError(t, err)

	// the session is revoked server side, e.g. from another device
	require.NoError(t, s.client.Post(ctx, "/auth/logout", nil, nil))

	err = s.client.Get(ctx, "/products", nil)
	assert.True(t, pipeline.IsUnauthorized(err))
	assert.Nil(t, s.gate.User())
	_, ok := s.store.Token()
	assert.False(t, ok)
	assert.Equal(t, "/login", s.router.Current())
	assert.Equal(t, []string{pipeline.MsgSessionExpired}, s.notifications())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Logouts.WithLabelValues(metrics.ReasonUnauthorized)))
}

func TestEndToEnd_ValidateSessionPicksUpRoleChange(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	u, err := s.gate.Login(ctx, "ventas@example.com", "ventas123")
	require.NoError(t, err)
	assert.Equal(t, session.RedirectTo("/dashboard"), s.gate.GuardRole("admin"))

	require.NoError(t, s.dir.SetRole(u.ID, "admin"))
	require.True(t, s.gate.ValidateSession(ctx))
	assert.Equal(t, session.Allow(), s.gate.GuardRole("admin"))
}

func TestEndToEnd_BadLoginStaysPut(t *testing.T) {
	s := newStack(t)

	_, err := s.gate.Login(context.Background(), "ventas@example.com", "wrong")
	var perr *pipeline.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Equal(t, "Credenciales inválidas", perr.Message)
	assert.Equal(t, "/dashboard", s.router.Current())
	assert.Empty(t, s.notifications())
}
