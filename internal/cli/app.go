package cli

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/api"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/config"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/credential"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/credential/repo"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/idle"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/pipeline"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/platform"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/session"
	"github.com/ovaphlow/pitchfork/client-session-go/pkg/database"
	"github.com/ovaphlow/pitchfork/client-session-go/pkg/utilities"
)

// app wires every session component for one CLI invocation.
type app struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	db     *sqlx.DB

	store    *credential.Store
	client   *api.Client
	gate     *session.Gate
	router   *platform.Router
	bus      *idle.Bus
	monitor  *idle.Monitor
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// loggedOut is closed on the first navigation to the login route
	loggedOut chan struct{}
}

func newApp(ctx context.Context, logger *zap.SugaredLogger, tabID string) (*app, error) {
	cfg, err := config.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if tabID != "" {
		cfg.TabID = tabID
	}
	if cfg.TabID == "" {
		cfg.TabID = utilities.NewKSUID()
	}

	a := &app{cfg: cfg, logger: logger, loggedOut: make(chan struct{})}

	var storage credential.Storage = credential.UnavailableStorage{}
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		logger.Warnw("credential storage unavailable, keeping session in memory", "err", err)
	} else {
		sqlStorage := repo.NewSQLStorage(db, cfg.TabID)
		if err := sqlStorage.EnsureTable(ctx); err != nil {
			logger.Warnw("credential table unavailable, keeping session in memory", "err", err)
			db.Close()
		} else {
			a.db = db
			storage = sqlStorage
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector())
	a.metrics = metrics.New(a.registry)

	var once sync.Once
	a.router = platform.NewRouter(logger, cfg.HomeRoute, func(path string) {
		if path == cfg.LoginRoute {
			once.Do(func() { close(a.loggedOut) })
		}
	})
	notifier := platform.NewLogNotifier(logger)

	a.store = credential.NewStore(credential.Options{
		Storage:      storage,
		SafetyMargin: cfg.SafetyMargin,
		Logger:       logger,
	})
	p := pipeline.New(&http.Client{Timeout: cfg.HTTPTimeout}, a.store, pipeline.Options{
		BaseURL:        cfg.BaseURL,
		LoginRoute:     cfg.LoginRoute,
		ExemptPaths:    []string{cfg.LoginPath},
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		Navigator:      a.router,
		Notifier:       notifier,
		Metrics:        a.metrics,
		Logger:         logger,
		RequestID:      utilities.NewSnowflakeID,
	})
	a.client = api.New(p, cfg.BaseURL)
	a.gate = session.NewGate(a.store, a.client, session.Options{
		LoginPath:   cfg.LoginPath,
		ProfilePath: cfg.ProfilePath,
		LoginRoute:  cfg.LoginRoute,
		HomeRoute:   cfg.HomeRoute,
		Navigator:   a.router,
		Metrics:     a.metrics,
		Logger:      logger,
	})
	a.bus = idle.NewBus()
	a.monitor = idle.New(a.bus, a.store, a.gate, idle.Options{
		Timeout:       cfg.IdleTimeout,
		CheckInterval: cfg.IdleCheckInterval,
		Throttle:      cfg.ActivityThrottle,
		Notifier:      notifier,
		Logger:        logger,
	})
	logger.Debugw("session core ready",
		"base_url", a.client.BaseURL(),
		"login_url", cfg.LoginURL(),
		"profile_url", cfg.ProfileURL(),
		"tab_id", cfg.TabID)
	return a, nil
}

func (a *app) Close() {
	a.monitor.Stop()
	a.gate.Close()
	if a.db != nil {
		a.db.Close()
	}
}

// restore runs the startup check: a persisted credential is validated once
// against the backend.
func (a *app) restore(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HTTPTimeout)
	defer cancel()
	return a.gate.ValidateSession(ctx)
}

func (a *app) describe() string {
	snap := a.gate.Snapshot()
	u := snap.User
	if u == nil {
		return "not signed in"
	}
	left := time.Duration(a.store.SecondsRemaining()) * time.Second
	return fmt.Sprintf("%s (id %d, role %s, company %d), %s, token valid for %s",
		u.DisplayName, u.ID, u.Role, u.CompanyID, snap.State, left)
}
