package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "promo_indexer"

// PrometheusMetrics 实现 application.Metrics
type PrometheusMetrics struct {
	rebuilds     *prometheus.HistogramVec
	rowsWritten  *prometheus.CounterVec
	simulations  *prometheus.CounterVec
	fallbacks    prometheus.Counter
	triggers     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// NewPrometheusMetrics 创建并注册全部指标
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		rebuilds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of index rebuilds by operation and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"operation", "outcome"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_written_total",
			Help:      "Index rows upserted.",
		}, []string{"operation"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "simulations_total",
			Help:      "Discount simulations by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "prefilter_fallbacks_total",
			Help:      "Rules whose conditions could not be translated into a product filter.",
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trigger_events_total",
			Help:      "Entity change events handled by type and outcome.",
		}, []string{"event", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_cache_lookups_total",
			Help:      "Query cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.rebuilds, m.rowsWritten, m.simulations, m.fallbacks, m.triggers, m.cacheLookups)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *PrometheusMetrics) RebuildFinished(op string, err error, d time.Duration) {
	m.rebuilds.WithLabelValues(op, outcome(err)).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RowsWritten(op string, n int) {
	m.rowsWritten.WithLabelValues(op).Add(float64(n))
}

func (m *PrometheusMetrics) Simulated(outcome string) {
	m.simulations.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) PrefilterFallback() {
	m.fallbacks.Inc()
}

func (m *PrometheusMetrics) TriggerHandled(event string, err error) {
	m.triggers.WithLabelValues(event, outcome(err)).Inc()
}

func (m *PrometheusMetrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
