package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// List возвращает заказы в порядке создания вместе с позициями.
func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.phone, o.created_at, l.lesson_id, l.spaces
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		ORDER BY o.created_at, o.id, l.line_no
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order    domain.Order
			lessonID string
			spaces   int
		)
		if err := rows.Scan(&order.ID, &order.Name, &order.Phone, &order.CreatedAt, &lessonID, &spaces); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}

		last := len(result) - 1
		if last < 0 || result[last].ID != order.ID {
			order.CreatedAt = order.CreatedAt.UTC()
			result = append(result, order)
			last++
		}
		result[last].LessonIDs = append(result[last].LessonIDs, lessonID)
		result[last].Spaces = append(result[last].Spaces, spaces)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
