package memory

import (
	"context"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// orderRepositoryInMemory - in-memory доступ к заказам на чтение.
// Запись происходит только в транзакции бронирования (см. unitOfWorkInMemory).
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает репозиторий заказов поверх общего Store.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// List возвращает копию заказов в порядке создания.
func (r *orderRepositoryInMemory) List(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		result = append(result, cloneOrder(order))
	}
	return result, nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.LessonIDs = append([]string(nil), src.LessonIDs...)
	dst.Spaces = append([]int(nil), src.Spaces...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
