package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	CompletionRequests *prometheus.CounterVec
	CompletionLatency  *prometheus.HistogramVec
	ReportCorrections  *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	OperationLatency   *prometheus.HistogramVec

	operations  *operationWindow
	completions *operationWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of interviews that started and have not ended.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Interview lifecycle events by type.",
		}, []string{"event"}),
		CompletionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Completion backend calls by mode and outcome.",
		}, []string{"mode", "outcome"}),
		CompletionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion backend latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}, []string{"mode"}),
		ReportCorrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_corrections_total",
			Help:      "Evaluation report fields repaired by the validator.",
		}, []string{"field"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_ms",
			Help:      "Interview operation latency in milliseconds by outcome.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}, []string{"operation", "outcome"}),
		operations:  newOperationWindow(256),
		completions: newOperationWindow(256),
	}
}

func (m *Metrics) ObserveSessionEvent(event string) {
	m.SessionEvents.WithLabelValues(event).Inc()
	switch event {
	case "started":
		m.ActiveSessions.Inc()
	case "ended":
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) ObserveCompletion(mode string, outcome string, elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000
	m.CompletionRequests.WithLabelValues(mode, outcome).Inc()
	m.CompletionLatency.WithLabelValues(mode).Observe(ms)
	m.completions.Observe(mode, elapsed, outcome != "ok")
}

// ObserveOperation records one start, answer or end call.
func (m *Metrics) ObserveOperation(op string, elapsed time.Duration, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.OperationLatency.WithLabelValues(op, outcome).Observe(float64(elapsed.Microseconds()) / 1000)
	m.operations.Observe(op, elapsed, failed)
}

func (m *Metrics) ObserveCorrection(field string) {
	m.ReportCorrections.WithLabelValues(field).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SnapshotLatency returns rolling latency per interview operation and per
// completion mode.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  m.operations.size,
		Operations:  m.operations.Stats(),
		Completions: m.completions.Stats(),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
