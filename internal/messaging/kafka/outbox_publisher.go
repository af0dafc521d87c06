package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// HeaderEventType дублирует тип события в заголовке для фильтрации без разбора тела.
const HeaderEventType = "x-event-type"

// TopicPublisher публикует outbox-сообщения в один topic. Какой поток куда
// идёт, решает outbox worker.
type TopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewTopicPublisher создаёт паблишер для topic.
func NewTopicPublisher(producer *Producer, topic string) *TopicPublisher {
	return &TopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Topic возвращает topic паблишера.
func (p *TopicPublisher) Topic() string {
	return p.topic
}

type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Publish оборачивает сообщение в конверт; ключ — заказ, чтобы события одного
// заказа шли в одну партицию.
func (p *TopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka topic publisher is not initialized")
	}
	if p.topic == "" {
		return fmt.Errorf("kafka topic publisher has no topic")
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	data, err := json.Marshal(outboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   p.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	return p.producer.PublishRaw(p.topic, key, data, map[string]string{
		HeaderEventType: msg.EventType,
	})
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
