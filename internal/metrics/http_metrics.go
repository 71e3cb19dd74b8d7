package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics - метрики входящих HTTP-запросов.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	limited  prometheus.Counter
}

// NewHTTPMetrics регистрирует HTTP-метрики в registerer.
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		limited: registerCounter(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
	}
}

// Observe записывает завершённый запрос.
func (m *HTTPMetrics) Observe(route, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordRateLimited увеличивает счётчик отклонённых лимитером запросов.
func (m *HTTPMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.limited.Inc()
}
