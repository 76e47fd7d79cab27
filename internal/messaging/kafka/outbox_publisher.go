package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicProjectionEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope := NewEnvelope(event, time.Now())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
