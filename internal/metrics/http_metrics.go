package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics: метрики REST API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics регистрирует метрики HTTP в указанном реестре (nil: реестр по умолчанию).
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: counterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status code",
		}, "method", "route", "code"),
		duration: histogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, "method", "route"),
		inFlight: gauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		}),
	}
}

// Begin отмечает начало запроса.
func (m *HTTPMetrics) Begin() time.Time {
	m.inFlight.Inc()
	return time.Now()
}

// Observe завершает запрос. route: шаблон маршрута, а не фактический путь.
func (m *HTTPMetrics) Observe(started time.Time, method, route string, code int) {
	m.inFlight.Dec()
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
}
