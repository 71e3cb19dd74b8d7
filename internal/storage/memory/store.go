package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// Store - общее in-memory состояние для уроков, заказов и outbox.
// Транзакция бронирования держит эксклюзивную блокировку Store на всё время
// выполнения, поэтому списание мест и запись заказа видны атомарно.
type Store struct {
	mu      sync.RWMutex
	lessons map[string]domain.Lesson
	order   []string
	orders  []domain.Order
	outbox  *outboxRepositoryInMemory
	now     func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	now := func() time.Time { return time.Now().UTC() }
	return &Store{
		lessons: make(map[string]domain.Lesson),
		outbox:  newOutboxRepository(now),
		now:     now,
	}
}

// Outbox возвращает outbox, в который коммитятся события бронирования.
func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

// Ping всегда успешен: in-memory хранилище доступно, пока жив процесс.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// lessonLocked возвращает урок по id; вызывающий должен держать mu.
func (s *Store) lessonLocked(id string) (domain.Lesson, bool) {
	lesson, ok := s.lessons[id]
	return lesson, ok
}

func (s *Store) putLessonLocked(lesson domain.Lesson) {
	if _, exists := s.lessons[lesson.ID]; !exists {
		s.order = append(s.order, lesson.ID)
	}
	s.lessons[lesson.ID] = lesson
}

var _ domain.Pinger = (*Store)(nil)
