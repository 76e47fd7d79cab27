package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProjectionMetrics: метрики синхронизации поисковой проекции.
type ProjectionMetrics struct {
	applied      *prometheus.CounterVec
	breakerState prometheus.Gauge
}

// NewProjectionMetrics регистрирует метрики проекции (nil: реестр по умолчанию).
func NewProjectionMetrics(registerer prometheus.Registerer) *ProjectionMetrics {
	return &ProjectionMetrics{
		applied: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_projection_events_total",
			Help: "Projection events applied to the search store by aggregate and result",
		}, "aggregate", "result"),
		breakerState: gauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_projection_breaker_open",
			Help: "1 when the search store circuit breaker is open",
		}),
	}
}

// RecordApplied учитывает обработанное событие. result: upserted, deleted, failed, rejected.
func (m *ProjectionMetrics) RecordApplied(aggregate, result string) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(aggregate, result).Inc()
}

func (m *ProjectionMetrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
		return
	}
	m.breakerState.Set(0)
}
