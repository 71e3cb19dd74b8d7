package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type lessonRepository struct {
	lessons *mongo.Collection
}

// NewLessonRepository создаёт MongoDB-реализацию LessonRepository.
func NewLessonRepository(cols Collections) domain.LessonRepository {
	return &lessonRepository{lessons: cols.Lessons}
}

func (r *lessonRepository) List(ctx context.Context) ([]domain.Lesson, error) {
	return r.find(ctx, bson.M{})
}

func (r *lessonRepository) Search(ctx context.Context, query domain.SearchQuery) ([]domain.Lesson, error) {
	return r.find(ctx, searchFilter(query))
}

func searchFilter(query domain.SearchQuery) bson.M {
	or := bson.A{}
	if query.Text != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query.Text), Options: "i"}
		or = append(or, bson.M{"subject": pattern}, bson.M{"location": pattern})
	}
	if query.Number != nil {
		or = append(or, bson.M{"price": *query.Number}, bson.M{"spaces": *query.Number})
	}
	if len(or) == 0 {
		// Пустой запрос ничего не находит.
		return bson.M{"_id": bson.M{"$exists": false}}
	}
	return bson.M{"$or": or}
}

func (r *lessonRepository) Update(ctx context.Context, id string, patch domain.LessonPatch) (domain.Lesson, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Lesson{}, domain.Errorf(domain.ErrValidation, "Invalid lesson id")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc lessonDocument
	err = r.lessons.FindOneAndUpdate(
		opCtx,
		bson.M{"_id": oid},
		bson.M{"$set": patchSet(patch)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("update lesson: %w", err)
	}
	return doc.toDomain(), nil
}

func patchSet(p domain.LessonPatch) bson.M {
	set := bson.M{}
	if p.Subject != nil {
		set["subject"] = *p.Subject
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.Spaces != nil {
		set["spaces"] = int(*p.Spaces)
	}
	if p.ImageFilename != nil {
		set["imageFilename"] = *p.ImageFilename
	}
	if p.IconClass != nil {
		set["iconClass"] = *p.IconClass
	}
	return set
}

func (r *lessonRepository) ReplaceAll(ctx context.Context, lessons []domain.Lesson) (int, error) {
	if _, err := r.lessons.DeleteMany(ctx, bson.M{}); err != nil {
		return 0, fmt.Errorf("clear lessons: %w", err)
	}
	if len(lessons) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, 0, len(lessons))
	for _, lesson := range lessons {
		docs = append(docs, lessonFromDomain(lesson))
	}
	res, err := r.lessons.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert lessons: %w", err)
	}
	return len(res.InsertedIDs), nil
}

func (r *lessonRepository) find(ctx context.Context, filter bson.M) ([]domain.Lesson, error) {
	cursor, err := r.lessons.Find(ctx, filter)
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

var _ domain.LessonRepository = (*lessonRepository)(nil)
