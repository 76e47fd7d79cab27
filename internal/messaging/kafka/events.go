package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics для Kafka
const (
	TopicProjectionEvents = "storefront.projection.events"
	TopicDeadLetterQueue  = "storefront.dlq"

	DefaultConsumerGroup = "storefront-projector"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope: outbox-сообщение в том виде, в каком оно уходит в топик.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func NewEnvelope(msg domain.OutboxMessage, now time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   now.UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного агрегата идут в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// OutboxMessage восстанавливает исходное outbox-сообщение.
func (e Envelope) OutboxMessage() domain.OutboxMessage {
	msg := domain.OutboxMessage{
		ID:            e.ID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
	}
	if len(e.Payload) > 0 && string(e.Payload) != "null" {
		msg.Payload = append([]byte(nil), e.Payload...)
	}
	return msg
}

// ParseEnvelope разбирает значение сообщения из топика проекции.
func ParseEnvelope(value []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.AggregateType == "" && envelope.AggregateID == "" {
		return Envelope{}, fmt.Errorf("%w: envelope %q has no aggregate", domain.ErrUnknownAggregate, envelope.ID)
	}
	return envelope, nil
}

// ConsumerDLQRecord пишет consumer, когда сообщение не удалось обработать.
type ConsumerDLQRecord struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// OutboxDLQRecord кладёт outbox worker в payload конверта, когда исчерпал попытки публикации.
type OutboxDLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// Replay: сообщение, которое нужно повторно отправить.
type Replay struct {
	Topic string
	Key   string
	Value []byte
}

// ExtractReplay восстанавливает исходное сообщение из записи DLQ.
// ok=false означает, что запись не относится к известным форматам и её нужно пропустить.
func ExtractReplay(value []byte, defaultTopic string, now time.Time) (Replay, bool, error) {
	var consumerRecord ConsumerDLQRecord
	if err := json.Unmarshal(value, &consumerRecord); err == nil && consumerRecord.OriginalValue != "" {
		topic := strings.TrimSpace(consumerRecord.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return Replay{Topic: topic, Key: consumerRecord.OriginalKey, Value: []byte(consumerRecord.OriginalValue)}, true, nil
	}

	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Replay{}, false, nil
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return Replay{}, false, nil
	}

	var outboxRecord OutboxDLQRecord
	if err := json.Unmarshal(envelope.Payload, &outboxRecord); err != nil {
		return Replay{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if outboxRecord.OutboxID == "" && outboxRecord.PublishError == "" {
		return Replay{}, false, nil
	}

	replay := Envelope{
		ID:            firstNonEmpty(outboxRecord.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(outboxRecord.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(outboxRecord.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(outboxRecord.EventType, envelope.EventType),
		Payload:       outboxRecord.Payload,
		PublishedAt:   now.UTC(),
	}
	if len(replay.Payload) == 0 {
		replay.Payload = json.RawMessage("null")
	}
	if replay.AggregateID == "" {
		return Replay{}, false, fmt.Errorf("outbox dlq record %q has no aggregate id", replay.ID)
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return Replay{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}
	return Replay{Topic: defaultTopic, Key: replay.Key(), Value: encoded}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
