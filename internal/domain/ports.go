package domain

import (
	"context"
	"time"
)

// InventoryService резервирует сеты под позиции заказа целиком.
type InventoryService interface {
	// ReserveOrder резервирует все позиции или ни одной.
	ReserveOrder(ctx context.Context, orderID string, items []OrderItem) error
	// ReleaseOrder возвращает на склад все позиции или ни одной.
	ReleaseOrder(ctx context.Context, orderID string, items []OrderItem) error
}

// OrderLocker сериализует изменения одного заказа. Пока блокировка удерживается,
// никто другой не двигает склад по этому заказу и не сохраняет его.
type OrderLocker interface {
	LockOrder(ctx context.Context, orderID string) (unlock func(), err error)
}

// Notifier принимает уведомления о переходах; доставка вне ядра.
type Notifier interface {
	Notify(n Notification) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	// MarkSent и MarkFailed завершают pending-сообщение; для отсутствующего или
	// уже завершённого возвращают ErrOutboxMessageNotFound.
	MarkSent(id string) error
	MarkFailed(id, reason string) error
}

// TimelineRepository — журнал заказа, упорядоченный по Seq внутри заказа.
type TimelineRepository interface {
	// Append присваивает записи следующий Seq заказа и возвращает её.
	Append(event TimelineEvent) (TimelineEvent, error)
	List(orderID string, filter TimelineFilter) ([]TimelineEvent, error)
}

// IdempotencyRepository — журнал мутирующих команд API по ключу идемпотентности.
type IdempotencyRepository interface {
	// Claim регистрирует команду. Если ключ занят, возвращает существующую запись и
	// ошибку из CommandRecord.ConflictWith.
	Claim(claim CommandClaim) (CommandRecord, error)
	Get(key string) (CommandRecord, error)
	// Settle сохраняет итог выполняющейся команды.
	Settle(key string, outcome CommandOutcome) error
	// Abandon снимает выполняющуюся команду, чтобы её можно было повторить с тем же ключом.
	Abandon(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStream — поток доставки outbox-сообщения.
type OutboxStream string

const (
	// OutboxStreamLifecycle — события заказа и леджера, по ним строятся проекции.
	OutboxStreamLifecycle OutboxStream = "lifecycle"
	// OutboxStreamNotifications — уведомления покупателям.
	OutboxStreamNotifications OutboxStream = "notifications"
)

// Stream определяет поток сообщения по типу события.
func (m OutboxMessage) Stream() OutboxStream {
	if m.EventType == OutboxEventNotification {
		return OutboxStreamNotifications
	}
	return OutboxStreamLifecycle
}

// Типы outbox-событий.
const (
	OutboxEventNotification  = "NotificationRequested"
	OutboxEventStatusChanged = "OrderStatusChanged"
	OutboxEventOrderCreated  = "OrderCreated"
	OutboxEventOrderUpdated  = "OrderUpdated"
	OutboxEventChargePosted  = "LedgerChargePosted"
)

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
	// PendingByStream — pending по потокам; отсутствующий поток значит ноль.
	PendingByStream map[OutboxStream]int
}
