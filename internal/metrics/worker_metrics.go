package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попыток публикации (значения label result).
const (
	PublishSent       = "sent"
	PublishRetryError = "retry_error"
	PublishFailed     = "failed"
	PublishDLQFailed  = "dlq_failed"
)

// WorkerMetrics - метрики фоновых воркеров: публикация outbox, backlog и очистка ключей.
type WorkerMetrics struct {
	attempts      *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
	purged        prometheus.Counter
}

// NewWorkerMetrics регистрирует метрики фоновых воркеров: outbox и очистки idempotency-ключей.
func NewWorkerMetrics(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "outbox_publish_attempts_total",
			Help:      "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "outbox_pending_records",
			Help:      "Current number of pending records in transactional outbox",
		}),
		oldestPending: registerGauge(registerer, prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "outbox_oldest_pending_age_seconds",
			Help:      "Age in seconds of the oldest pending outbox record",
		}),
		purged: registerCounter(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "idempotency_keys_purged_total",
			Help:      "Total number of expired idempotency keys removed by the cleanup worker",
		}),
	}
}

// RecordAttempt увеличивает счётчик попыток с результатом result.
func (m *WorkerMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog выставляет размер backlog и возраст самого старого сообщения.
func (m *WorkerMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestPending.Set(oldestAge.Seconds())
}

// RecordPurged учитывает удалённые просроченные idempotency-ключи.
func (m *WorkerMetrics) RecordPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}
