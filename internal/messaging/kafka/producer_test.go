package kafka

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func TestNewProducer_NoBrokers(t *testing.T) {
	_, err := NewProducer(nil, "lessonbook", nil)
	if !errors.Is(err, ErrNoBrokers) {
		t.Fatalf("expected ErrNoBrokers, got %v", err)
	}
}

func TestProducer_PublishJSON(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded["order_id"] != "64b7f0c2a1b2c3d4e5f60718" {
			return errors.New("unexpected order_id")
		}
		return nil
	})

	producer := newProducer(mockProducer, quietLogger())
	err := producer.PublishJSON(TopicOrderEvents, "64b7f0c2a1b2c3d4e5f60718", map[string]any{
		"order_id": "64b7f0c2a1b2c3d4e5f60718",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := newProducer(mockProducer, quietLogger())
	err := producer.Send(TopicOrderEvents, "key", []byte(`{}`), nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishJSON_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, quietLogger())

	if err := producer.PublishJSON(TopicOrderEvents, "key", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
