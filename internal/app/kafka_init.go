package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/messaging/kafka"
)

// eventPublishers - публикаторы outbox; nil, если Kafka не настроена или недоступна.
type eventPublishers struct {
	producer *kafka.Producer
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// initKafka создаёт producer, если заданы брокеры. Недоступная Kafka не
// мешает старту: заказы копятся в outbox до следующего запуска.
func initKafka(cfg Config, logger *log.Entry) (*eventPublishers, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   cfg.KafkaTopic,
	}).Info("kafka producer initialized")

	return &eventPublishers{
		producer: producer,
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
	}, nil
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(p *eventPublishers, logger *log.Entry) {
	if p == nil || p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
