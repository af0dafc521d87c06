package lifecycle

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// OutboxNotifier кладёт уведомление в outbox; доставку выполняет outbox worker.
type OutboxNotifier struct {
	outbox domain.OutboxRepository
}

// NewOutboxNotifier создаёт нотификатор поверх outbox.
func NewOutboxNotifier(outbox domain.OutboxRepository) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox}
}

// Notify сериализует уведомление и ставит его в очередь публикации.
func (n *OutboxNotifier) Notify(notification domain.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = n.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   notification.OrderID,
		EventType:     domain.OutboxEventNotification,
		Payload:       payload,
	})
	return err
}

// LogNotifier только пишет уведомления в лог.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт нотификатор-заглушку.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "notifier-log")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(notification domain.Notification) error {
	n.logger.WithFields(log.Fields{
		"recipient_id": notification.RecipientID,
		"order_id":     notification.OrderID,
		"severity":     notification.Severity,
	}).Info(notification.Title)
	return nil
}

// notificationFor строит уведомление о переходе в статус заказа.
func notificationFor(order domain.Order) domain.Notification {
	n := domain.Notification{
		RecipientID: order.AccountID,
		OrderID:     order.ID,
		Category:    domain.NotificationCategoryOrder,
		Severity:    domain.NotificationSeverityInfo,
		Link:        "/orders/" + order.ID,
	}

	switch order.Status {
	case domain.OrderStatusAccepted:
		n.Title = "Order accepted"
		n.Message = fmt.Sprintf("Your order %s has been accepted and the sets are reserved.", order.ID)
	case domain.OrderStatusReady:
		n.Title = "Order ready"
		n.Message = fmt.Sprintf("Order %s is ready. The invoice and documents are available.", order.ID)
		if order.Documents.InvoiceURL != "" {
			n.Link = order.Documents.InvoiceURL
		}
	case domain.OrderStatusDispatched:
		carrier := order.Transport.Carrier
		if carrier == "" {
			carrier = "transport"
		}
		n.Title = "Order dispatched"
		n.Message = fmt.Sprintf("Order %s dispatched via %s, tracking %s.", order.ID, carrier, order.Transport.GRNumber)
	case domain.OrderStatusDelivered:
		n.Title = "Order delivered"
		n.Message = fmt.Sprintf("Order %s has been delivered. Please share your feedback.", order.ID)
	case domain.OrderStatusCancelled:
		n.Title = "Order cancelled"
		n.Message = fmt.Sprintf("Order %s was cancelled: %s", order.ID, order.CancelReason)
		n.Severity = domain.NotificationSeverityAlert
	default:
		n.Title = "Order updated"
		n.Message = fmt.Sprintf("Order %s is now %s.", order.ID, order.Status)
	}
	return n
}

var (
	_ domain.Notifier = (*OutboxNotifier)(nil)
	_ domain.Notifier = (*LogNotifier)(nil)
)
