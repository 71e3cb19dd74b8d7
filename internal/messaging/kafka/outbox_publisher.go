package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный topic.
// Ключ сообщения - id заказа, поэтому события одного заказа попадают в одну партицию.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт публикатор для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("%w: kafka publisher is not initialized", domain.ErrOutboxPublish)
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	body, err := json.Marshal(NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return p.producer.Send(p.topic, key, body, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
