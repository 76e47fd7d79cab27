package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(""))
}

func TestReadConfig(t *testing.T) {
	parse := func(args ...string) (config, error) {
		fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		return readConfig(fs, args)
	}

	cfg, err := parse("-brokers=broker-1:9092,broker-2:9092", "-limit=10", "-execute", "-from-newest", "-idle-timeout=3s")
	require.NoError(t, err)
	assert.Len(t, cfg.brokers, 2)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, kafka.TopicProjectionEvents, cfg.targetTopic)
	assert.Equal(t, 10, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)

	t.Setenv("STOREFRONT_KAFKA_BROKERS", "")
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"-brokers="}, want: "kafka brokers are required"},
		{args: []string{"-brokers=b:9092", "-source-topic="}, want: "source-topic is required"},
		{args: []string{"-brokers=b:9092", "-target-topic="}, want: "target-topic is required"},
		{args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit must be > 0"},
		{args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
	}
	for _, tt := range tests {
		_, err := parse(tt.args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.want)
	}
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_KAFKA_BROKERS", "env-broker:9092")
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	cfg, err := readConfig(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
}

func consumerDLQValue(t *testing.T, key string) []byte {
	t.Helper()
	msg := domain.NewProjectionMessage(domain.AggregateOrder, key, false, time.Now())
	envelope, err := json.Marshal(kafka.NewEnvelope(msg, time.Now()))
	require.NoError(t, err)
	value, err := json.Marshal(kafka.ConsumerDLQRecord{
		OriginalTopic: kafka.TopicProjectionEvents,
		OriginalKey:   key,
		OriginalValue: string(envelope),
	})
	require.NoError(t, err)
	return value
}

func TestReplayer_DryRunAndExecute(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicProjectionEvents, limit: 10, idleTimeout: 20 * time.Millisecond}
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	messages := func() map[int32]partitionConsumer {
		return map[int32]partitionConsumer{0: closedPartitionConsumer([]*sarama.ConsumerMessage{
			{Partition: 0, Offset: 0, Value: consumerDLQValue(t, "order-1")},
			{Partition: 0, Offset: 1, Value: []byte(`{"foo":"bar"}`)},
			{Partition: 0, Offset: 2, Value: consumerDLQValue(t, "order-2")},
		})}
	}

	dry := replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: messages()}}
	stats, err := dry.partition(context.Background(), 0, cfg.limit)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)

	cfg.execute = true
	producer := &stubReplayProducer{}
	exec := replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: messages()}, producer: producer}
	require.NoError(t, exec.run(context.Background()))
	require.Len(t, producer.sent, 2)
	assert.Equal(t, kafka.TopicProjectionEvents, producer.sent[0].Topic)
	assert.Equal(t, "order-1", producer.sent[0].Key)

	envelope, err := kafka.ParseEnvelope(producer.sent[1].Value)
	require.NoError(t, err)
	assert.Equal(t, "order-2", envelope.AggregateID)
}

func TestReplayer_Limits(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicProjectionEvents, limit: 1, idleTimeout: 20 * time.Millisecond}
	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}, 2: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: consumerDLQValue(t, "a")}}),
		2: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: consumerDLQValue(t, "b")}}),
	}}

	require.NoError(t, replayer{cfg: cfg, client: client, consumer: consumer}.run(context.Background()))
	require.Len(t, consumer.calls, 1, "limit reached after the first partition")
	assert.Equal(t, int32(0), consumer.calls[0].partition)

	cfg.fromNewest = true
	cfg.limit = 5
	client.offsets[0] = offsetRange{oldest: 10, newest: 100}
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)}}
	_, err := replayer{cfg: cfg, client: client, consumer: consumer}.partition(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(95), consumer.calls[0].offset)
}

func TestReplayer_Errors(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicProjectionEvents, limit: 1, execute: true, idleTimeout: 20 * time.Millisecond}
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	require.Error(t, replayer{cfg: cfg}.run(context.Background()))
	require.ErrorContains(t, replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{}}.run(context.Background()), "producer is required")

	offsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	_, err := replayer{cfg: cfg, client: offsetErr}.partition(context.Background(), 0, 1)
	require.Error(t, err)

	_, err = replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumeErr: errors.New("consume")}}.partition(context.Background(), 0, 1)
	require.Error(t, err)

	failing := &stubReplayProducer{sendErr: errors.New("send fail")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: consumerDLQValue(t, "x")}}),
	}}
	_, err = replayer{cfg: cfg, client: client, consumer: consumer, producer: failing}.partition(context.Background(), 0, 1)
	require.ErrorContains(t, err, "send fail")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idle := &stubPartitionConsumer{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	cfg.idleTimeout = time.Hour
	_, err = replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}}}.partition(ctx, 0, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_ClosesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	t.Cleanup(func() { newReplayDependencies = oldDeps })

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicProjectionEvents, limit: 1, execute: true, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	require.ErrorContains(t, run(context.Background(), cfg), "deps failed")

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: consumerDLQValue(t, "o")}}),
	}}
	producer := &stubReplayProducer{}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	require.NoError(t, run(context.Background(), cfg))
	assert.True(t, client.closed && consumer.closed && producer.closed)
	assert.Len(t, producer.sent, 1)
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions []int32
	offsets    map[int32]offsetRange
	offsetErr  map[int32]error
	closed     bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error                             { return nil }

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}

type stubReplayProducer struct {
	sendErr error
	sent    []kafka.Replay
	closed  bool
}

func (s *stubReplayProducer) Send(topic, key string, value []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, kafka.Replay{Topic: topic, Key: key, Value: value})
	return nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
