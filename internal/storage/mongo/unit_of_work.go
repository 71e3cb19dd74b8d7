package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type unitOfWork struct {
	client *mongo.Client
	cols   Collections
}

// NewUnitOfWork создаёт транзакционную границу бронирования на сессиях MongoDB.
// Требует replica set или sharded cluster.
func NewUnitOfWork(handle *Handle, cols Collections) domain.UnitOfWork {
	return &unitOfWork{client: handle.Client(), cols: cols}
}

// WithinBooking выполняет fn в session.WithTransaction. Драйвер повторяет
// транзакцию целиком при TransientTransactionError; ошибки fn возвращаются как есть.
func (u *unitOfWork) WithinBooking(ctx context.Context, fn func(ctx context.Context, tx domain.BookingTx) error) error {
	session, err := u.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx, &bookingTx{cols: u.cols})
	}, txnOpts)
	return err
}

// bookingTx выполняет операции в контексте сессии, переданном в каждый вызов.
type bookingTx struct {
	cols Collections
}

func (tx *bookingTx) FindLessons(ctx context.Context, ids []string) ([]domain.Lesson, error) {
	oids, err := objectIDs(ids)
	if err != nil {
		return nil, err
	}

	cursor, err := tx.cols.Lessons.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("find lessons: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []lessonDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode lessons: %w", err)
	}

	result := make([]domain.Lesson, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

func (tx *bookingTx) DecrementSpaces(ctx context.Context, lessonID string, qty int) (bool, error) {
	oids, err := objectIDs([]string{lessonID})
	if err != nil {
		return false, err
	}

	res, err := tx.cols.Lessons.UpdateOne(ctx,
		bson.M{"_id": oids[0], "spaces": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"spaces": -qty}},
	)
	if err != nil {
		return false, fmt.Errorf("decrement spaces: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (tx *bookingTx) InsertOrder(ctx context.Context, order domain.Order) error {
	doc, err := orderFromDomain(order)
	if err != nil {
		return err
	}
	if _, err := tx.cols.Orders.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (tx *bookingTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	_, err := tx.cols.Outbox.InsertOne(ctx, outboxDocument{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
