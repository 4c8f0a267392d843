// Package metrics exposes Prometheus counters for the session core.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Logout reasons.
const (
	ReasonUser         = "user"
	ReasonUnauthorized = "unauthorized"
	ReasonIdle         = "idle"
	ReasonExpired      = "expired"
)

// Metrics holds all Prometheus metrics for the session core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Retries  prometheus.Counter
	Failures *prometheus.CounterVec
	Logouts  *prometheus.CounterVec
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Retries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sessioncore",
				Subsystem: "pipeline",
				Name:      "retries_total",
				Help:      "Retries of idempotent requests after a transient failure",
			},
		),
		Failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessioncore",
				Subsystem: "pipeline",
				Name:      "failures_total",
				Help:      "Final request failures against the owning backend",
			},
			[]string{"status"}, // status=0 for no connection
		),
		Logouts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessioncore",
				Name:      "logouts_total",
				Help:      "Session terminations by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) Failure(status int) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) Logout(reason string) {
	if m == nil {
		return
	}
	m.Logouts.WithLabelValues(reason).Inc()
}
