package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в бронировании (значения label reason).
const (
	RejectValidation  = "validation"
	RejectNotFound    = "not_found"
	RejectCapacity    = "capacity"
	RejectConcurrency = "concurrency"
	RejectInternal    = "internal"
)

// BookingMetrics содержит метрики транзакции бронирования.
type BookingMetrics struct {
	placed       prometheus.Counter
	rejected     *prometheus.CounterVec
	bookedSpaces prometheus.Counter
	txDuration   prometheus.Histogram
}

// NewBookingMetrics регистрирует метрики бронирования в registerer
// (prometheus.DefaultRegisterer, если nil).
func NewBookingMetrics(registerer prometheus.Registerer) *BookingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BookingMetrics{
		placed: registerCounter(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_placed_total",
			Help:      "Total number of orders committed",
		}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_rejected_total",
			Help:      "Total number of rejected order placements grouped by reason",
		}, []string{"reason"}),
		bookedSpaces: registerCounter(registerer, prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "booked_spaces_total",
			Help:      "Total number of lesson spaces booked",
		}),
		txDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "booking_tx_duration_seconds",
			Help:      "Duration of the booking transaction in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
	}
}

// RecordPlaced фиксирует успешный заказ и количество забронированных мест.
func (m *BookingMetrics) RecordPlaced(spaces int) {
	if m == nil {
		return
	}
	m.placed.Inc()
	m.bookedSpaces.Add(float64(spaces))
}

// RecordRejected фиксирует отказ с указанной причиной.
func (m *BookingMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// ObserveTx записывает длительность транзакции.
func (m *BookingMetrics) ObserveTx(duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.Observe(duration.Seconds())
}
