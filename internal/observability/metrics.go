package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveChats         prometheus.Gauge
	Turns               *prometheus.CounterVec
	StageLatency        *prometheus.HistogramVec
	SideEffects         *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	ValidatorRejections *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	StreamEvents        *prometheus.CounterVec

	window *latencyWindow
}

// NewMetrics registers instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveChats: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chats",
			Help:      "Chats with a turn seen within the idle timeout.",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by intent and outcome.",
		}, []string{"intent", "outcome"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Turn stage latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"stage"}),
		SideEffects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_total",
			Help:      "Executed side effects by type and status.",
		}, []string{"type", "status"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_cache_lookups_total",
			Help:      "History cache lookups by outcome.",
		}, []string{"outcome"}),
		ValidatorRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sql_rejections_total",
			Help:      "Generated statements rejected by the validator, by reason code.",
		}, []string{"code"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and task.",
		}, []string{"provider", "task"}),
		StreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Streamed events by transport and kind.",
		}, []string{"transport", "event"}),
		window: newLatencyWindow(512),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.window.observe(stage, ms)
}

func (m *Metrics) ObserveTurn(intent, outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(intent, outcome).Inc()
	m.window.count("outcome_" + outcome)
}

func (m *Metrics) ObserveSideEffect(effect, status string) {
	if m == nil {
		return
	}
	m.SideEffects.WithLabelValues(effect, status).Inc()
}

func (m *Metrics) ObserveCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
	m.window.count("cache_" + outcome)
}

func (m *Metrics) ObserveRejection(code string) {
	if m == nil {
		return
	}
	m.ValidatorRejections.WithLabelValues(code).Inc()
	m.window.count("rejected_" + code)
}

func (m *Metrics) ObserveProviderError(provider, task string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, task).Inc()
}

func (m *Metrics) ObserveStreamEvent(transport, event string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(transport, event).Inc()
}

func (m *Metrics) SetActiveChats(n int) {
	if m == nil {
		return
	}
	m.ActiveChats.Set(float64(n))
}

// LatencySnapshot reports the rolling per-stage latency window.
func (m *Metrics) LatencySnapshot() LatencyReport {
	if m == nil {
		return newLatencyWindow(1).report()
	}
	return m.window.report()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
