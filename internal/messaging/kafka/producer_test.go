package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewOrderEvent(
		EventTypeOrderAccepted,
		"test-order-123",
		"acc-1",
		"accepted",
		map[string]interface{}{
			"total_minor": 3000,
		},
	)

	if err := producer.PublishEvent(TopicOrderEvents, "test-order-123", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := NewProducerWithSyncProducer(mockProducer, log.WithField("component", "kafka-producer-test"))

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeOrderCancelled, "test-order-123", "acc-1", "cancelled", nil)

	if err := producer.PublishEvent(TopicOrderEvents, "test-order-123", event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishRawSetsHeaders(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderRetryCount || string(msg.Headers[0].Value) != "2" {
			t.Errorf("unexpected headers: %+v", msg.Headers)
		}
		return nil
	})

	producer := NewProducerWithSyncProducer(mockProducer, nil)
	if err := producer.PublishRaw(TopicDeadLetterQueue, "order-1", []byte(`{}`), map[string]string{HeaderRetryCount: "2"}); err != nil {
		t.Fatalf("publish raw failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	metadata := map[string]interface{}{
		"gr_number": "524339",
	}

	event := NewOrderEvent(EventTypeOrderDispatched, "order-123", "acc-1", "dispatched", metadata)

	if event.EventType != EventTypeOrderDispatched {
		t.Errorf("expected event type %s, got %s", EventTypeOrderDispatched, event.EventType)
	}
	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}
	if event.AccountID != "acc-1" {
		t.Errorf("expected account id acc-1, got %s", event.AccountID)
	}
	if event.Metadata["gr_number"] != "524339" {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() || time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestEventTypeForStatus(t *testing.T) {
	if EventTypeForStatus("delivered") != EventTypeOrderDelivered {
		t.Fatal("unexpected event type for delivered")
	}
	if EventTypeForStatus("cancelled") != EventTypeOrderCancelled {
		t.Fatal("unexpected event type for cancelled")
	}
}
