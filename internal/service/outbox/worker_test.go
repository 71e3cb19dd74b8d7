package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
	"github.com/vladislavdragonenkov/lessonbook/internal/storage/memory"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func orderCreated(orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   orderID,
		EventType:     domain.OutboxEventOrderCreated,
		Payload:       []byte(`{"id":"` + orderID + `","spaces":[1]}`),
	}
}

func newTestWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	base := []Option{
		WithLogger(quietLogger()),
		WithMetrics(metrics.NewWorkerMetrics(prometheus.NewRegistry())),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	}
	return NewWorker(repo, publisher, append(base, options...)...)
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	msg := repo.Enqueue(orderCreated("64b7f0c2a1b2c3d4e5f60718"))
	publisher := &stubPublisher{}

	sent := newTestWorker(repo, publisher).ProcessOnce(context.Background())

	if sent != 1 {
		t.Fatalf("expected 1 sent event, got %d", sent)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
	if publisher.last().ID != msg.ID {
		t.Fatalf("expected published id %s, got %s", msg.ID, publisher.last().ID)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	msg := repo.Enqueue(orderCreated("64b7f0c2a1b2c3d4e5f60719"))
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	worker := newTestWorker(repo, publisher, WithDLQPublisher(dlq), WithClock(func() time.Time { return fixed }))

	if sent := worker.ProcessOnce(context.Background()); sent != 0 {
		t.Fatalf("expected 0 sent events, got %d", sent)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := dlq.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("failed event must leave pending state, got %d pending", len(pending))
	}

	var record dlqRecord
	if err := json.Unmarshal(dlq.last().Payload, &record); err != nil {
		t.Fatalf("decode dlq payload: %v", err)
	}
	if record.OutboxID != msg.ID || record.AggregateID != msg.AggregateID {
		t.Fatalf("unexpected dlq record: %+v", record)
	}
	if record.EventType != domain.OutboxEventOrderCreated {
		t.Fatalf("unexpected dlq event type: %s", record.EventType)
	}
	if !record.DLQPublishedAt.Equal(fixed) {
		t.Fatalf("unexpected dlq timestamp: %s", record.DLQPublishedAt)
	}
	if string(record.Payload) != string(msg.Payload) {
		t.Fatalf("original payload must be embedded, got %s", record.Payload)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	repo.Enqueue(orderCreated("64b7f0c2a1b2c3d4e5f6071a"))
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	sent := newTestWorker(repo, publisher).ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if sent != 1 {
		t.Fatalf("expected 1 sent event, got %d", sent)
	}
}

func TestWorker_ProcessOnce_RespectsBatchSize(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	for i := 0; i < 5; i++ {
		repo.Enqueue(orderCreated(domain.NewID()))
	}
	publisher := &stubPublisher{}

	worker := newTestWorker(repo, publisher, WithBatchSize(2))

	if sent := worker.ProcessOnce(context.Background()); sent != 2 {
		t.Fatalf("expected 2 sent events, got %d", sent)
	}
	if pending := repo.AllPending(); len(pending) != 3 {
		t.Fatalf("expected 3 pending events, got %d", len(pending))
	}
}

func TestWorker_RetryBackoff(t *testing.T) {
	worker := NewWorker(nil, nil, WithLogger(quietLogger()), WithRetryBaseDelay(10*time.Millisecond))

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, expected := range want {
		if got := worker.retryBackoff(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}

	worker = NewWorker(nil, nil, WithLogger(quietLogger()), WithRetryBaseDelay(time.Duration(1<<62)))
	if got := worker.retryBackoff(10); got != time.Duration(1<<63-1) {
		t.Fatalf("expected saturated backoff, got %s", got)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(memory.NewOutboxRepository(), &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
