package domain

// NotificationSeverity задаёт важность уведомления.
type NotificationSeverity string

const (
	NotificationSeverityInfo  NotificationSeverity = "info"
	NotificationSeverityAlert NotificationSeverity = "alert"
)

// NotificationCategoryOrder — категория уведомлений о заказах.
const NotificationCategoryOrder = "order"

// Notification — абстрактное событие для внешнего нотификатора.
type Notification struct {
	RecipientID string               `json:"recipient_id"`
	OrderID     string               `json:"order_id"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Category    string               `json:"category"`
	Severity    NotificationSeverity `json:"severity"`
	Link        string               `json:"link,omitempty"`
}
