package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type orderRepository struct {
	orders *mongo.Collection
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(cols Collections) domain.OrderRepository {
	return &orderRepository{orders: cols.Orders}
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.orders.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	result := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
