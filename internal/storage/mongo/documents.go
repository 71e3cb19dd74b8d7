package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type lessonDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Subject       string             `bson:"subject"`
	Location      string             `bson:"location"`
	Price         float64            `bson:"price"`
	Spaces        int                `bson:"spaces"`
	ImageFilename string             `bson:"imageFilename,omitempty"`
	IconClass     string             `bson:"iconClass,omitempty"`
}

func (d lessonDocument) toDomain() domain.Lesson {
	return domain.Lesson{
		ID:            d.ID.Hex(),
		Subject:       d.Subject,
		Location:      d.Location,
		Price:         d.Price,
		Spaces:        d.Spaces,
		ImageFilename: d.ImageFilename,
		IconClass:     d.IconClass,
	}
}

func lessonFromDomain(l domain.Lesson) lessonDocument {
	doc := lessonDocument{
		Subject:       l.Subject,
		Location:      l.Location,
		Price:         l.Price,
		Spaces:        l.Spaces,
		ImageFilename: l.ImageFilename,
		IconClass:     l.IconClass,
	}
	if oid, err := primitive.ObjectIDFromHex(l.ID); err == nil {
		doc.ID = oid
	} else {
		doc.ID = primitive.NewObjectID()
	}
	return doc
}

type orderDocument struct {
	ID        primitive.ObjectID   `bson:"_id"`
	Name      string               `bson:"name"`
	Phone     string               `bson:"phone"`
	LessonIDs []primitive.ObjectID `bson:"lessonIDs"`
	Spaces    []int                `bson:"spaces"`
	CreatedAt time.Time            `bson:"createdAt"`
}

func (d orderDocument) toDomain() domain.Order {
	ids := make([]string, 0, len(d.LessonIDs))
	for _, id := range d.LessonIDs {
		ids = append(ids, id.Hex())
	}
	return domain.Order{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Phone:     d.Phone,
		LessonIDs: ids,
		Spaces:    append([]int(nil), d.Spaces...),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func orderFromDomain(o domain.Order) (orderDocument, error) {
	id, err := primitive.ObjectIDFromHex(o.ID)
	if err != nil {
		return orderDocument{}, fmt.Errorf("order id %q: %w", o.ID, err)
	}
	lessonIDs, err := objectIDs(o.LessonIDs)
	if err != nil {
		return orderDocument{}, err
	}
	return orderDocument{
		ID:        id,
		Name:      o.Name,
		Phone:     o.Phone,
		LessonIDs: lessonIDs,
		Spaces:    append([]int(nil), o.Spaces...),
		CreatedAt: o.CreatedAt.UTC(),
	}, nil
}

type outboxDocument struct {
	ID            string    `bson:"_id"`
	AggregateType string    `bson:"aggregateType"`
	AggregateID   string    `bson:"aggregateID"`
	EventType     string    `bson:"eventType"`
	Payload       []byte    `bson:"payload"`
	Status        string    `bson:"status"`
	AttemptCount  int       `bson:"attemptCount"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func (d outboxDocument) toDomain() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.ID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       d.Payload,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	result := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, domain.Errorf(domain.ErrValidation, "Invalid ObjectId in lessonIDs/lessons")
		}
		result = append(result, oid)
	}
	return result, nil
}
