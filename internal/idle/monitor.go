// Package idle ends the session after a period without user interaction, or
// as soon as the credential expires, whichever comes first.
package idle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/platform"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultCheckInterval = 60 * time.Second
	DefaultThrottle      = 2 * time.Second
)

const (
	MsgInactivity = "Your session was closed due to inactivity."
	MsgExpired    = "Your session has expired. Please sign in again."
)

// Terminator performs a full logout.
type Terminator interface {
	EndSession(reason string)
}

// Expiry reports whether the credential can no longer be used.
type Expiry interface {
	IsExpired() bool
}

type Options struct {
	Timeout       time.Duration
	CheckInterval time.Duration
	Throttle      time.Duration

	Clock    clockwork.Clock
	Notifier platform.Notifier
	Logger   *zap.SugaredLogger
}

// Monitor is either inactive or watching. All methods are safe for
// concurrent use.
type Monitor struct {
	mu      sync.Mutex
	active  bool
	last    time.Time
	limiter *rate.Limiter
	offs    []func()
	ticker  clockwork.Ticker
	stop    chan struct{}
	done    chan struct{}

	source Source
	expiry Expiry
	term   Terminator

	timeout  time.Duration
	interval time.Duration
	throttle time.Duration
	clock    clockwork.Clock
	notify   platform.Notifier
	logger   *zap.SugaredLogger

	// checks counts completed periodic checks.
	checks int
}

func New(source Source, expiry Expiry, term Terminator, opts Options) *Monitor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = platform.NotifierFunc(func(platform.Severity, string) {})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Monitor{
		source:   source,
		expiry:   expiry,
		term:     term,
		timeout:  opts.Timeout,
		interval: opts.CheckInterval,
		throttle: opts.Throttle,
		clock:    opts.Clock,
		notify:   opts.Notifier,
		logger:   opts.Logger,
	}
}

// Start begins watching. It is a no-op when already active.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return
	}
	m.active = true
	m.last = m.clock.Now()
	m.limiter = rate.NewLimiter(rate.Every(m.throttle), 1)
	m.offs = m.offs[:0]
	for _, s := range Signals {
		m.offs = append(m.offs, m.source.On(s, m.touch))
	}
	m.ticker = m.clock.NewTicker(m.interval)
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.ticker, m.stop, m.done)
	m.logger.Debugw("idle monitor started", "timeout", m.timeout, "interval", m.interval)
}

// Stop stops watching and waits for the check loop to exit, so no check runs
// after Stop returns. It is a no-op when inactive.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	done := m.teardownLocked()
	m.mu.Unlock()
	<-done
	m.logger.Debugw("idle monitor stopped")
}

// Active reports whether the monitor is watching.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// LastActivity returns the last accepted interaction instant.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) teardownLocked() chan struct{} {
	m.active = false
	for _, off := range m.offs {
		off()
	}
	m.offs = m.offs[:0]
	m.ticker.Stop()
	close(m.stop)
	return m.done
}

func (m *Monitor) touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	now := m.clock.Now()
	if m.limiter.AllowN(now, 1) {
		m.last = now
	}
}

func (m *Monitor) loop(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			m.check()
		}
	}
}

func (m *Monitor) check() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.checks++
	idleFor := m.clock.Since(m.last)

	var reason, msg string
	var sev platform.Severity
	switch {
	case idleFor >= m.timeout:
		reason, msg, sev = metrics.ReasonIdle, MsgInactivity, platform.SeverityInfo
	case m.expiry.IsExpired():
		reason, msg, sev = metrics.ReasonExpired, MsgExpired, platform.SeverityWarning
	default:
		m.mu.Unlock()
		return
	}
	// the loop sees stop closed on its next select and exits
	m.teardownLocked()
	m.mu.Unlock()

	m.logger.Infow("ending session", "reason", reason, "idle_for", idleFor)
	m.notify.Notify(sev, msg)
	m.term.EndSession(reason)
}

func (m *Monitor) checkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}
