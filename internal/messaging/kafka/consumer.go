package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultMaxRetries         = 3
	defaultRetryDelay         = 200 * time.Millisecond
	defaultUnavailableBackoff = time.Second
)

// MessageHandler обрабатывает сообщение из Kafka
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDLQ включает отправку в Dead Letter Queue после исчерпания попыток.
func WithDLQ(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlqProducer = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay задаёт паузу между попытками обработки одного сообщения.
func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer читает топик consumer group'ой, повторяет неудачные сообщения и уводит их в DLQ.
//
// Пока обработчик отвечает domain.ErrProjectionUnavailable, сообщение не считается неудачным:
// consumer ждёт и повторяет его, не сдвигая offset.
type Consumer struct {
	consumer           sarama.ConsumerGroup
	topics             []string
	handler            MessageHandler
	logger             *log.Entry
	wg                 sync.WaitGroup
	dlqProducer        *Producer
	dlqTopic           string
	maxRetries         int
	retryDelay         time.Duration
	unavailableBackoff time.Duration
}

// NewConsumerConfig возвращает настройки consumer group.
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	return config
}

// NewConsumer создает новый Kafka consumer
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, options ...ConsumerOption) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, topics, handler, options...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer:           group,
		topics:             topics,
		handler:            handler,
		logger:             log.WithField("component", "kafka-consumer"),
		dlqTopic:           TopicDeadLetterQueue,
		maxRetries:         defaultMaxRetries,
		retryDelay:         defaultRetryDelay,
		unavailableBackoff: defaultUnavailableBackoff,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				if session.Context().Err() != nil {
					return nil
				}
				c.logger.WithError(err).WithFields(fields).Error("message processing failed after all retries")
				continue
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry обрабатывает сообщение с retry логикой и отправкой в DLQ.
// Заголовок x-retry-count учитывает попытки, сделанные до повторной отправки из DLQ.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	retryCount := c.getRetryCount(message)
	attempts := c.maxRetries - retryCount
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; {
		err := c.handler(ctx, message)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrProjectionUnavailable) {
			if waitErr := sleep(ctx, c.unavailableBackoff); waitErr != nil {
				return waitErr
			}
			continue
		}

		lastErr = err
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"attempt":     attempt,
			"retry_count": retryCount,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed")

		attempt++
		if attempt <= attempts {
			if waitErr := sleep(ctx, c.retryDelay); waitErr != nil {
				return waitErr
			}
		}
	}

	if c.dlqProducer == nil {
		return lastErr
	}
	if dlqErr := c.sendToDLQ(message, lastErr); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retryCount,
	}).Info("message sent to DLQ after max retries")
	return nil
}

// getRetryCount извлекает retry count из headers сообщения
func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error) error {
	record := ConsumerDLQRecord{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        c.getRetryCount(message),
	}
	if processingErr != nil {
		record.ErrorMessage = processingErr.Error()
	}
	return c.dlqProducer.PublishEvent(c.dlqTopic, string(message.Key), record)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewProjectionHandler передаёт конверты из топика проекции получателю, обычно search.Projector.
func NewProjectionHandler(target domain.OutboxPublisher) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseEnvelope(message.Value)
		if err != nil {
			return err
		}
		return target.Publish(ctx, envelope.OutboxMessage())
	}
}
