package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const defaultLocalIntegrationURI = "mongodb://localhost:27017/?directConnection=true"

// openAccessorForIntegrationTest подключается к локальной MongoDB и очищает коллекции.
// Тест пропускается, если сервер недоступен.
func openAccessorForIntegrationTest(t *testing.T) *Accessor {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("LESSONBOOK_MONGO_TEST_URI"))
	if uri == "" {
		uri = defaultLocalIntegrationURI
	}

	acc := NewAccessor(Config{
		URI:            uri,
		Database:       "lesson_booking_test",
		ConnectTimeout: 2 * time.Second,
	}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := acc.Connect(ctx); err != nil {
		t.Skipf("mongo is unavailable for integration tests: %v", err)
	}
	t.Cleanup(func() {
		_ = acc.Close(context.Background())
	})

	cols, err := acc.Collections()
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	for _, c := range []interface{ Drop(context.Context) error }{cols.Lessons, cols.Orders, cols.Outbox} {
		if err := c.Drop(ctx); err != nil {
			t.Fatalf("drop collection: %v", err)
		}
	}
	return acc
}

// requireReplicaSet пропускает тест, если сервер не поддерживает транзакции.
func requireReplicaSet(t *testing.T, acc *Accessor) {
	t.Helper()

	h, err := acc.Handle()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var hello bson.M
	if err := h.Database().RunCommand(context.Background(), bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	if _, ok := hello["setName"]; !ok {
		t.Skip("mongo transactions require a replica set")
	}
}

func seedLessonsForIntegrationTest(t *testing.T, acc *Accessor, lessons ...domain.Lesson) []domain.Lesson {
	t.Helper()

	cols, err := acc.Collections()
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	repo := NewLessonRepository(cols)
	if _, err := repo.ReplaceAll(context.Background(), lessons); err != nil {
		t.Fatalf("seed lessons: %v", err)
	}
	seeded, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("list lessons: %v", err)
	}
	return seeded
}
