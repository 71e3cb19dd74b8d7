package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
)

// Service выполняет транзакцию бронирования поверх любого domain.UnitOfWork.
// Сам сервис не держит блокировок: изоляцию обеспечивает транзакция хранилища
// и условное списание мест.
type Service struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics включает метрики бронирования.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис бронирования.
func NewService(uow domain.UnitOfWork, options ...Option) *Service {
	s := &Service{
		uow: uow,
		now: time.Now,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "booking")
	}
	return s
}

// PlaceOrder нормализует запрос и атомарно списывает места и создаёт заказ.
// Ошибки классифицируются через errors.Is: ErrValidation, ErrLessonNotFound,
// ErrCapacity, ErrConcurrency; всё остальное - внутренняя ошибка хранилища.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (domain.Order, error) {
	draft, err := Normalize(req)
	if err != nil {
		s.reject(err, log.Fields{"stage": "normalize"})
		return domain.Order{}, err
	}

	order := domain.NewOrder(draft.Name, draft.Phone, draft.Items, s.now())
	payload, err := json.Marshal(order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("marshal order event: %w", err)
	}

	started := time.Now()
	err = s.uow.WithinBooking(ctx, func(ctx context.Context, tx domain.BookingTx) error {
		return book(ctx, tx, order, payload)
	})
	s.metrics.ObserveTx(time.Since(started))

	fields := log.Fields{
		"order_id": order.ID,
		"lessons":  len(draft.Items),
		"spaces":   draft.TotalSpaces(),
	}
	if err != nil {
		s.reject(err, fields)
		return domain.Order{}, err
	}

	s.metrics.RecordPlaced(draft.TotalSpaces())
	s.logger.WithFields(fields).Info("order placed")
	return order, nil
}

// book - шаги транзакции: чтение, проверка вместимости, условное списание,
// запись заказа и события outbox. Любая ошибка откатывает всё.
func book(ctx context.Context, tx domain.BookingTx, order domain.Order, payload []byte) error {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return fmt.Errorf("order invariants: %w", errors.Join(errs...))
	}

	items := order.Items()

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.LessonID
	}

	// Хранилище возвращает каждый урок один раз, поэтому повторный id в заказе
	// даёт расхождение количества и отклоняется как ненайденный.
	lessons, err := tx.FindLessons(ctx, ids)
	if err != nil {
		return fmt.Errorf("load lessons: %w", err)
	}
	if len(lessons) != len(ids) {
		return domain.Errorf(domain.ErrLessonNotFound, "One or more lessons not found")
	}

	available := make(map[string]int, len(lessons))
	for _, lesson := range lessons {
		available[lesson.ID] = lesson.Spaces
	}
	for _, item := range items {
		spaces, ok := available[item.LessonID]
		if !ok {
			return domain.Errorf(domain.ErrLessonNotFound, "One or more lessons not found")
		}
		if spaces < item.Quantity {
			return domain.Errorf(domain.ErrCapacity, "Not enough spaces for lesson %s", item.LessonID)
		}
	}

	for _, item := range items {
		ok, err := tx.DecrementSpaces(ctx, item.LessonID, item.Quantity)
		if err != nil {
			return fmt.Errorf("decrement spaces: %w", err)
		}
		if !ok {
			return domain.Errorf(domain.ErrConcurrency, "Concurrent update detected; please try again")
		}
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   order.ID,
		EventType:     domain.OutboxEventOrderCreated,
		Payload:       payload,
		CreatedAt:     order.CreatedAt,
	}); err != nil {
		return fmt.Errorf("enqueue order event: %w", err)
	}
	return nil
}

func (s *Service) reject(err error, fields log.Fields) {
	reason := rejectReason(err)
	s.metrics.RecordRejected(reason)

	entry := s.logger.WithError(err).WithFields(fields).WithField("reason", reason)
	if reason == metrics.RejectInternal {
		entry.Error("order placement failed")
		return
	}
	entry.Info("order rejected")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return metrics.RejectValidation
	case errors.Is(err, domain.ErrLessonNotFound):
		return metrics.RejectNotFound
	case errors.Is(err, domain.ErrCapacity):
		return metrics.RejectCapacity
	case errors.Is(err, domain.ErrConcurrency):
		return metrics.RejectConcurrency
	default:
		return metrics.RejectInternal
	}
}
