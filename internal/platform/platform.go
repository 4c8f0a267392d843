// Package platform holds the contracts the session core consumes from the
// surrounding application: navigation and user notifications.
package platform

import (
	"sync"

	"go.uber.org/zap"
)

// Navigator moves the application to a route.
type Navigator interface {
	GoTo(path string)
}

// Severity of a user-facing notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Notifier displays a message to the user.
type Notifier interface {
	Notify(severity Severity, message string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) GoTo(path string) { f(path) }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(severity Severity, message string)

func (f NotifierFunc) Notify(severity Severity, message string) { f(severity, message) }

// Router is a Navigator that remembers the current route. Navigating to the
// route already shown is a no-op, so redundant redirects collapse.
type Router struct {
	mu      sync.Mutex
	current string
	logger  *zap.SugaredLogger
	onGo    func(path string)
}

// NewRouter creates a Router starting at initial. onGo, if set, is called for
// every effective route change.
func NewRouter(logger *zap.SugaredLogger, initial string, onGo func(path string)) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{current: initial, logger: logger, onGo: onGo}
}

func (r *Router) GoTo(path string) {
	r.mu.Lock()
	if r.current == path {
		r.mu.Unlock()
		r.logger.Debugw("navigation skipped, already on route", "path", path)
		return
	}
	from := r.current
	r.current = path
	r.mu.Unlock()

	r.logger.Infow("navigate", "from", from, "to", path)
	if r.onGo != nil {
		r.onGo(path)
	}
}

// Current returns the route last navigated to.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// LogNotifier writes notifications to the logger, for headless use.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(severity Severity, message string) {
	switch severity {
	case SeverityError, SeverityWarning:
		n.logger.Warnw("notification", "severity", string(severity), "message", message)
	default:
		n.logger.Infow("notification", "severity", string(severity), "message", message)
	}
}
