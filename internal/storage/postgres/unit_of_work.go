package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type unitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork создаёт транзакционную границу бронирования на PostgreSQL.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{db: store.DB()}
}

// WithinBooking выполняет fn в транзакции READ COMMITTED. Защиту от овербукинга
// даёт условный UPDATE ... WHERE spaces >= qty, а не уровень изоляции.
func (u *unitOfWork) WithinBooking(ctx context.Context, fn func(ctx context.Context, tx domain.BookingTx) error) (err error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &bookingTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

type bookingTx struct {
	tx *sql.Tx
}

func (b *bookingTx) FindLessons(ctx context.Context, ids []string) ([]domain.Lesson, error) {
	if len(ids) == 0 {
		return []domain.Lesson{}, nil
	}

	// pgx stdlib принимает []string как text[].
	rows, err := b.tx.QueryContext(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("find lessons: %w", err)
	}
	return scanLessons(rows)
}

func (b *bookingTx) DecrementSpaces(ctx context.Context, lessonID string, qty int) (bool, error) {
	res, err := b.tx.ExecContext(ctx, `
		UPDATE lessons
		SET spaces = spaces - $1
		WHERE id = $2 AND spaces >= $1
	`, qty, lessonID)
	if err != nil {
		return false, fmt.Errorf("decrement spaces: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement rows affected: %w", err)
	}
	return affected == 1, nil
}

func (b *bookingTx) InsertOrder(ctx context.Context, order domain.Order) error {
	if _, err := b.tx.ExecContext(ctx, `
		INSERT INTO orders (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, order.ID, order.Name, order.Phone, order.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert order %s: duplicate id", order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items() {
		if _, err := b.tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, lesson_id, spaces)
			VALUES ($1,$2,$3,$4)
		`, order.ID, i, item.LessonID, item.Quantity); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (b *bookingTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
