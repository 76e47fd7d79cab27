package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics: метрики ключей идемпотентности оформления заказа.
type IdempotencyMetrics struct {
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
	replays        *prometheus.CounterVec
}

func NewIdempotencyMetrics(registerer prometheus.Registerer) *IdempotencyMetrics {
	return &IdempotencyMetrics{
		cleanupRuns: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, "result"),
		cleanupDeleted: counter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: gauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
		replays: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_requests_total",
			Help: "Requests carrying an idempotency key grouped by outcome.",
		}, "outcome"),
	}
}

func (m *IdempotencyMetrics) RecordCleanupRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

func (m *IdempotencyMetrics) RecordDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}

// RecordRequest учитывает исход запроса с ключом: fresh, replayed, conflict, in_flight.
func (m *IdempotencyMetrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(outcome).Inc()
}
