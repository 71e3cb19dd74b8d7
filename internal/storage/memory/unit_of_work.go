package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type unitOfWorkInMemory struct {
	store *Store
}

// NewUnitOfWork возвращает транзакционную границу бронирования для Store.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWorkInMemory{store: store}
}

// WithinBooking выполняет fn над рабочей копией изменений.
// Изменения применяются к Store только если fn вернула nil.
func (u *unitOfWorkInMemory) WithinBooking(ctx context.Context, fn func(ctx context.Context, tx domain.BookingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	tx := &bookingTxInMemory{
		store:   u.store,
		lessons: make(map[string]domain.Lesson),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for _, lesson := range tx.lessons {
		u.store.putLessonLocked(lesson)
	}
	u.store.orders = append(u.store.orders, tx.orders...)
	for _, msg := range tx.outbox {
		u.store.outbox.enqueue(msg)
	}
	return nil
}

// bookingTxInMemory копит изменения одной транзакции.
type bookingTxInMemory struct {
	store   *Store
	lessons map[string]domain.Lesson
	orders  []domain.Order
	outbox  []domain.OutboxMessage
}

func (tx *bookingTxInMemory) lesson(id string) (domain.Lesson, bool) {
	if staged, ok := tx.lessons[id]; ok {
		return staged, true
	}
	return tx.store.lessonLocked(id)
}

func (tx *bookingTxInMemory) FindLessons(ctx context.Context, ids []string) ([]domain.Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	result := make([]domain.Lesson, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if lesson, ok := tx.lesson(id); ok {
			result = append(result, lesson)
		}
	}
	return result, nil
}

func (tx *bookingTxInMemory) DecrementSpaces(ctx context.Context, lessonID string, qty int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	current, ok := tx.lesson(lessonID)
	if !ok || current.Spaces < qty {
		return false, nil
	}
	current.Spaces -= qty
	tx.lessons[lessonID] = current
	return true, nil
}

func (tx *bookingTxInMemory) InsertOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, existing := range tx.store.orders {
		if existing.ID == order.ID {
			return fmt.Errorf("insert order %s: duplicate id", order.ID)
		}
	}
	tx.orders = append(tx.orders, cloneOrder(order))
	return nil
}

func (tx *bookingTxInMemory) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.outbox = append(tx.outbox, msg)
	return nil
}

var _ domain.UnitOfWork = (*unitOfWorkInMemory)(nil)
