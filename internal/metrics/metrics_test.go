package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Retry()
	m.Retry()
	m.Failure(401)
	m.Logout(ReasonIdle)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logouts.WithLabelValues(ReasonIdle)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Retry()
		m.Failure(503)
		m.Logout(ReasonUser)
	})
}
