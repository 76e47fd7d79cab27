package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачного оформления заказа для метки reason.
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonEmptyCart         = "empty_cart"
	ReasonNotFound          = "not_found"
	ReasonValidation        = "validation"
	ReasonNumberCollision   = "number_collision"
	ReasonInternal          = "internal"
)

// OrderMetrics: метрики жизненного цикла заказа.
type OrderMetrics struct {
	ordersCreated    prometheus.Counter
	ordersCancelled  *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	checkoutFailures *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	unitsReserved    prometheus.Counter
	unitsReleased    prometheus.Counter
	timelineEvents   prometheus.Counter
	outboxEnqueued   prometheus.Counter
	activeCheckouts  prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: counter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders placed",
		}),
		ordersCancelled: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_cancelled_total",
			Help: "Total number of cancelled orders by actor",
		}, "actor"),
		statusChanges: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_changes_total",
			Help: "Total number of admin status updates by target status",
		}, "status"),
		checkoutFailures: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failures_total",
			Help: "Total number of failed checkouts by reason",
		}, "reason"),
		checkoutDuration: histogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout units of work in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		unitsReserved: counter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_units_reserved_total",
			Help: "Total number of stock units taken by checkouts",
		}),
		unitsReleased: counter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_units_released_total",
			Help: "Total number of stock units returned by cancellations",
		}),
		timelineEvents: counter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		outboxEnqueued: counter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_enqueued_total",
			Help: "Total number of projection events written to the outbox",
		}),
		activeCheckouts: gauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of checkouts currently in progress",
		}),
	}
}

// CheckoutStarted отмечает начало оформления и возвращает функцию завершения.
func (m *OrderMetrics) CheckoutStarted() func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	m.activeCheckouts.Inc()
	return func() {
		m.activeCheckouts.Dec()
		m.checkoutDuration.Observe(time.Since(started).Seconds())
	}
}

func (m *OrderMetrics) RecordOrderCreated(units int) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.unitsReserved.Add(float64(units))
}

func (m *OrderMetrics) RecordCheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(reason).Inc()
}

// RecordCancelled учитывает отмену. actor: "user" или "admin".
func (m *OrderMetrics) RecordCancelled(actor string, unitsReleased int) {
	if m == nil {
		return
	}
	m.ordersCancelled.WithLabelValues(actor).Inc()
	m.unitsReleased.Add(float64(unitsReleased))
}

func (m *OrderMetrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

func (m *OrderMetrics) RecordOutboxEnqueued(n int) {
	if m == nil {
		return
	}
	m.outboxEnqueued.Add(float64(n))
}
