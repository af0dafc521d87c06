package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События жизненного цикла заказа
	EventTypeOrderCreated    EventType = "order.created"
	EventTypeOrderAccepted   EventType = "order.accepted"
	EventTypeOrderReady      EventType = "order.ready"
	EventTypeOrderDispatched EventType = "order.dispatched"
	EventTypeOrderDelivered  EventType = "order.delivered"
	EventTypeOrderCancelled  EventType = "order.cancelled"

	// Побочные каналы без смены статуса
	EventTypeDocumentsAmended   EventType = "order.documents_amended"
	EventTypeDiscountApplied    EventType = "order.discount_applied"
	EventTypeLedgerChargePosted EventType = "ledger.charge_posted"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "wholesale.order.events"
	TopicNotifications   = "wholesale.notifications"
	TopicDeadLetterQueue = "wholesale.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	AccountID string                 `json:"account_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, accountID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		AccountID: accountID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// EventTypeForStatus сопоставляет статус заказа типу события.
func EventTypeForStatus(status string) EventType {
	return EventType("order." + status)
}
