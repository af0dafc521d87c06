package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

func TestTopicPublisher_WritesEnvelopeKeyedByOrder(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicNotifications {
			t.Errorf("expected topic %s, got %s", TopicNotifications, msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			t.Errorf("expected key order-123, got %s", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope outboxEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.EventType != domain.OutboxEventNotification {
			t.Errorf("unexpected event type %s", envelope.EventType)
		}
		if string(envelope.Payload) != `{"title":"Order accepted"}` {
			t.Errorf("unexpected payload %s", envelope.Payload)
		}
		return nil
	})

	publisher := NewTopicPublisher(NewProducerWithSyncProducer(mockProducer, log.WithField("component", "kafka-topic-publisher-test")), TopicNotifications)
	if err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     domain.OutboxEventNotification,
		Payload:       []byte(`{"title":"Order accepted"}`),
	}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicPublisher_FallsBackToOutboxIDKey(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "outbox-2" {
			t.Errorf("expected key outbox-2, got %s", key)
		}
		return nil
	})

	publisher := NewTopicPublisher(NewProducerWithSyncProducer(mockProducer, nil), TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", EventType: domain.OutboxEventChargePosted}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicPublisher_ProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewTopicPublisher(NewProducerWithSyncProducer(mockProducer, nil), TopicOrderEvents)
	err := publisher.Publish(domain.OutboxMessage{
		ID:          "outbox-3",
		AggregateID: "order-234",
		EventType:   domain.OutboxEventStatusChanged,
		Payload:     []byte(`{"status":"cancelled"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	if err := NewTopicPublisher(nil, TopicOrderEvents).Publish(domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	mockProducer := mocks.NewSyncProducer(t, nil)
	if err := NewTopicPublisher(NewProducerWithSyncProducer(mockProducer, nil), "").Publish(domain.OutboxMessage{ID: "outbox-5"}); err == nil {
		t.Fatal("expected error for empty topic")
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
