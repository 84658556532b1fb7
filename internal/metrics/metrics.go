// Package metrics exposes pipeline and service counters to Prometheus.
// Label values are bounded: message kinds, miss reasons and run outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"demoreel/internal/analysis"
	"demoreel/internal/protocol"
)

type Metrics struct {
	messages    *prometheus.CounterVec
	traces      prometheus.Counter
	misses      *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	rejected    *prometheus.CounterVec
	wsActive    prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demoreel_messages_total",
			Help: "Decoded messages processed, by kind",
		}, []string{"kind"}),
		traces: f.NewCounter(prometheus.CounterOpts{
			Name: "demoreel_traces_total",
			Help: "Damage traces emitted",
		}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demoreel_correlation_misses_total",
			Help: "Damage events that produced no trace, by reason",
		}, []string{"reason"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demoreel_runs_total",
			Help: "Completed pipeline runs, by outcome",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "demoreel_run_duration_seconds",
			Help:    "Wall time of one pipeline run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demoreel_requests_rejected_total",
			Help: "Requests rejected before processing",
		}, []string{"reason"}), // rate_limit, body_too_large, decode, no_header, bad_header
		wsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "demoreel_websocket_connections_active",
			Help: "Open trace stream connections",
		}),
	}
}

var _ analysis.Observer = (*Metrics)(nil)

func (m *Metrics) MessageProcessed(kind protocol.Kind) {
	m.messages.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) TraceEmitted() { m.traces.Inc() }

func (m *Metrics) CorrelationMissed(reason analysis.MissReason) {
	m.misses.WithLabelValues(string(reason)).Inc()
}

// RunFinished records one run; err == nil counts as "ok".
func (m *Metrics) RunFinished(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) Rejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *Metrics) WSConnected()    { m.wsActive.Inc() }
func (m *Metrics) WSDisconnected() { m.wsActive.Dec() }
