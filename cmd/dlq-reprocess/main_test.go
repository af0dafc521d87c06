package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
)

func testConfig() config {
	return config{
		brokers:           []string{"broker:9092"},
		sourceTopic:       kafka.TopicDeadLetterQueue,
		orderTopic:        kafka.TopicOrderEvents,
		notificationTopic: kafka.TopicNotifications,
		limit:             10,
		idleTimeout:       200 * time.Millisecond,
	}
}

func dlqValue(t *testing.T, eventType, orderID string) []byte {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-" + orderID,
		"aggregate_type": "order",
		"aggregate_id":   orderID,
		"event_type":     eventType,
		"payload": map[string]any{
			"outbox_id":      "outbox-" + orderID,
			"aggregate_type": "order",
			"order_id":       orderID,
			"event_type":     eventType,
			"payload":        map[string]any{"status": "delivered", "total_minor": 3000},
			"publish_error":  "broker unavailable",
		},
	})
	require.NoError(t, err)
	return raw
}

func TestParseFlags(t *testing.T) {
	fs := flag.NewFlagSet("dlq", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := parseFlags(fs, []string{"-limit", "5", "-execute", "-event-type", domain.OutboxEventChargePosted}, func(key string) string {
		if key == "WHOLESALE_KAFKA_BROKERS" {
			return " b1:9092, ,b2:9092 "
		}
		return ""
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.brokers)
	require.Equal(t, 5, cfg.limit)
	require.True(t, cfg.execute)
	require.Equal(t, domain.OutboxEventChargePosted, cfg.eventType)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)

	fs = flag.NewFlagSet("dlq", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err = parseFlags(fs, nil, func(string) string { return "" })
	require.ErrorContains(t, err, "brokers are required")

	fs = flag.NewFlagSet("dlq", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err = parseFlags(fs, []string{"-brokers", "b:9092", "-limit", "0"}, func(string) string { return "" })
	require.ErrorContains(t, err, "limit")
}

func TestDecodeDLQMessage_RoutesByEventType(t *testing.T) {
	cfg := testConfig()

	replay, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: dlqValue(t, domain.OutboxEventStatusChanged, "order-1")}, cfg)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicOrderEvents, replay.topic)
	require.Equal(t, "order-1", replay.key)
	require.Equal(t, 1, replay.retry)

	var restored map[string]any
	require.NoError(t, json.Unmarshal(replay.value, &restored))
	require.Equal(t, "outbox-order-1", restored["id"])
	require.Equal(t, "delivered", restored["payload"].(map[string]any)["status"])

	notification, err := decodeDLQMessage(&sarama.ConsumerMessage{
		Value:   dlqValue(t, domain.OutboxEventNotification, "order-2"),
		Headers: []*sarama.RecordHeader{{Key: []byte(kafka.HeaderRetryCount), Value: []byte("2")}},
	}, cfg)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicNotifications, notification.topic)
	require.Equal(t, 3, notification.retry)
}

func TestDecodeDLQMessage_PrefersRecordedStream(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"id":         "outbox-order-7",
		"event_type": "OrderCustomEvent",
		"payload": map[string]any{
			"outbox_id":     "outbox-order-7",
			"order_id":      "order-7",
			"event_type":    "OrderCustomEvent",
			"stream":        string(domain.OutboxStreamNotifications),
			"payload":       map[string]any{"title": "Order ready"},
			"publish_error": "broker unavailable",
		},
	})
	require.NoError(t, err)

	replay, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: raw}, testConfig())
	require.NoError(t, err)
	require.Equal(t, kafka.TopicNotifications, replay.topic)
	require.Equal(t, "order-7", replay.key)
}

func TestDecodeDLQMessage_Errors(t *testing.T) {
	cfg := testConfig()

	_, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: []byte("not json")}, cfg)
	require.Error(t, err)

	_, err = decodeDLQMessage(&sarama.ConsumerMessage{Value: []byte(`{"id":"x"}`)}, cfg)
	require.ErrorContains(t, err, "no payload")

	_, err = decodeDLQMessage(&sarama.ConsumerMessage{Value: []byte(`{"id":"x","payload":{"outbox_id":"x"}}`)}, cfg)
	require.ErrorContains(t, err, "original event")
}

type fakeClient struct {
	partitions []int32
	oldest     int64
	newest     int64
}

func (c *fakeClient) GetOffset(_ string, _ int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return c.oldest, nil
	}
	return c.newest, nil
}

func (c *fakeClient) Partitions(string) ([]int32, error) { return c.partitions, nil }
func (c *fakeClient) Close() error                       { return nil }

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (p *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *fakePartitionConsumer) Close() error                             { return nil }

type fakeConsumer struct {
	values [][]byte
}

func (c *fakeConsumer) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(c.values)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for i, value := range c.values {
		pc.messages <- &sarama.ConsumerMessage{Partition: partition, Offset: offset + int64(i), Value: value}
	}
	return pc, nil
}

func (c *fakeConsumer) Close() error { return nil }

type published struct {
	topic   string
	key     string
	headers map[string]string
}

type fakePublisher struct {
	sent []published
	err  error
}

func (p *fakePublisher) PublishRaw(topic, key string, _ []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, headers: headers})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestRunReplay_ExecuteFiltersAndPublishes(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true
	cfg.eventType = domain.OutboxEventChargePosted

	consumer := &fakeConsumer{values: [][]byte{
		dlqValue(t, domain.OutboxEventChargePosted, "order-1"),
		[]byte("garbage"),
		dlqValue(t, domain.OutboxEventStatusChanged, "order-2"),
	}}
	publisher := &fakePublisher{}

	stats, err := runReplay(context.Background(), cfg, &fakeClient{partitions: []int32{0}, newest: 3}, consumer, publisher)
	require.NoError(t, err)
	require.Equal(t, replayStats{processed: 3, replayed: 1, skipped: 2}, stats)
	require.Len(t, publisher.sent, 1)
	require.Equal(t, kafka.TopicOrderEvents, publisher.sent[0].topic)
	require.Equal(t, "order-1", publisher.sent[0].key)
	require.Equal(t, domain.OutboxEventChargePosted, publisher.sent[0].headers[kafka.HeaderEventType])
	require.Equal(t, "1", publisher.sent[0].headers[kafka.HeaderRetryCount])
}

func TestRunReplay_DryRunAndLimits(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 1

	consumer := &fakeConsumer{values: [][]byte{
		dlqValue(t, domain.OutboxEventStatusChanged, "order-1"),
		dlqValue(t, domain.OutboxEventStatusChanged, "order-2"),
	}}

	stats, err := runReplay(context.Background(), cfg, &fakeClient{partitions: []int32{1, 0}, newest: 2}, consumer, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.processed)
	require.Equal(t, 1, stats.replayed)

	stats, err = runReplay(context.Background(), testConfig(), &fakeClient{partitions: []int32{0}}, consumer, nil)
	require.NoError(t, err)
	require.Zero(t, stats.processed)
}

func TestRunReplay_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true

	_, err := runReplay(context.Background(), cfg, &fakeClient{}, &fakeConsumer{}, nil)
	require.ErrorContains(t, err, "publisher is required")

	consumer := &fakeConsumer{values: [][]byte{dlqValue(t, domain.OutboxEventStatusChanged, "order-1")}}
	publisher := &fakePublisher{err: errors.New("broker down")}
	_, err = runReplay(context.Background(), cfg, &fakeClient{partitions: []int32{0}, newest: 1}, consumer, publisher)
	require.ErrorContains(t, err, "broker down")
}
