package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// delivery описывает, как события outbox попадают в проекцию.
// Без брокеров outbox worker вызывает проектор напрямую.
type delivery struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	producer  *kafka.Producer
	consumer  *kafka.Consumer
}

// initDelivery подключает Kafka, если заданы брокеры. Ошибка подключения
// не фатальна: сервис продолжает работу с доставкой в процессе.
func initDelivery(cfg Config, projector domain.OutboxPublisher, logger *log.Entry) *delivery {
	inProcess := &delivery{publisher: projector}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers are not configured, projection events are applied in-process")
		return inProcess
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return inProcess
	}

	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaConsumerGroup,
		[]string{cfg.KafkaProjectionTopic},
		kafka.NewProjectionHandler(projector),
		kafka.WithDLQ(producer, cfg.KafkaDLQTopic),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without kafka")
		closeKafkaProducer(producer, logger)
		return inProcess
	}

	logger.WithFields(log.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   cfg.KafkaProjectionTopic,
		"group":   cfg.KafkaConsumerGroup,
	}).Info("kafka delivery initialized")
	return &delivery{
		publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaProjectionTopic),
		dlq:       kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
		producer:  producer,
		consumer:  consumer,
	}
}

// closeKafkaProducer закрывает Kafka producer, если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
