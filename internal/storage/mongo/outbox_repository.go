package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type outboxRepository struct {
	outbox *mongo.Collection
}

// NewOutboxRepository создаёт MongoDB-реализацию OutboxRepository.
func NewOutboxRepository(cols Collections) domain.OutboxRepository {
	return &outboxRepository{outbox: cols.Outbox}
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.outbox.Find(ctx, bson.M{"status": domain.OutboxStatusPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []outboxDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	filter := bson.M{"status": domain.OutboxStatusPending}
	count, err := r.outbox.CountDocuments(ctx, filter)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("count pending outbox messages: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: int(count)}
	if count == 0 {
		return stats, nil
	}

	var oldest outboxDocument
	err = r.outbox.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})).Decode(&oldest)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.OutboxStats{}, fmt.Errorf("find oldest outbox message: %w", err)
	}
	stats.OldestPendingAt = oldest.CreatedAt.UTC()
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.mark(id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.mark(id, domain.OutboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.outbox.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"attemptCount": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("mark outbox %s: %w", status, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
