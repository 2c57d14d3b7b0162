package ledger

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"logane/internal/errs"
)

// Metrics records ledger call outcomes.
type Metrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsRegistry *Metrics
)

// NewMetrics builds unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logane_ledger_calls_total",
			Help: "Ledger gateway calls by operation, mode and outcome.",
		}, []string{"operation", "mode", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logane_ledger_call_seconds",
			Help:    "Ledger gateway call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "mode"}),
	}
}

// GatewayMetrics returns the process-wide metrics, registering them with the
// default registry on first use.
func GatewayMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsRegistry = NewMetrics()
		prometheus.MustRegister(metricsRegistry.calls, metricsRegistry.latency)
	})
	return metricsRegistry
}

// Observe records one call.
func (m *Metrics) Observe(operation string, mode Mode, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(errs.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.calls.WithLabelValues(operation, string(mode), outcome).Inc()
	m.latency.WithLabelValues(operation, string(mode)).Observe(time.Since(started).Seconds())
}
