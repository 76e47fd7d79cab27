package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var decoded map[string]string
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded["aggregate_id"] != "order-123" {
			t.Errorf("unexpected payload: %s", value)
		}
		return nil
	})

	err := producer.PublishEvent(TopicProjectionEvents, "order-123", map[string]string{"aggregate_id": "order-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.PublishEvent(TopicProjectionEvents, "order-123", struct{}{}); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	if err := producer.PublishEvent(TopicProjectionEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewProducerConfig(t *testing.T) {
	config := NewProducerConfig()
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must be idempotent with a single in-flight request")
	}
	if config.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("unexpected acks: %v", config.Producer.RequiredAcks)
	}
}
