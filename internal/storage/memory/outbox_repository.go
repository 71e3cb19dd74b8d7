package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

// outboxRepositoryInMemory - in-memory transactional outbox.
// Сообщения попадают сюда только при коммите транзакции бронирования.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	now     func() time.Time
}

// NewOutboxRepository создаёт отдельный in-memory outbox (для тестов воркера).
func NewOutboxRepository() *outboxRepositoryInMemory {
	return newOutboxRepository(func() time.Time { return time.Now().UTC() })
}

func newOutboxRepository(now func() time.Time) *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{records: make(map[string]*outboxRecord), now: now}
}

// Enqueue сохраняет событие со статусом `pending` вне транзакции бронирования.
func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) domain.OutboxMessage {
	return r.enqueue(msg)
}

func (r *outboxRepositoryInMemory) enqueue(msg domain.OutboxMessage) domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    domain.OutboxStatusPending,
		updatedAt: now,
	}
	return msg
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pending()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	pending := r.pending()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].CreatedAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.mark(id, domain.OutboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.mark(id, domain.OutboxStatusFailed)
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	return r.pending()
}

func (r *outboxRepositoryInMemory) mark(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = r.now()
	return nil
}

func (r *outboxRepositoryInMemory) pending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, len(r.records))
	for _, rec := range r.records {
		if rec.status == domain.OutboxStatusPending {
			result = append(result, rec.msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
