package domain

import (
	"strings"
	"time"
)

// TimelineEventType — вид записи в журнале заказа.
type TimelineEventType string

const (
	TimelineOrderCreated           TimelineEventType = "OrderCreated"
	TimelineStatusChanged          TimelineEventType = "OrderStatusChanged"
	TimelineDocumentsAmended       TimelineEventType = "DocumentsAmended"
	TimelineDiscountApplied        TimelineEventType = "DiscountApplied"
	TimelineDisclosureAcknowledged TimelineEventType = "DiscountDisclosureAcknowledged"
)

// Valid сообщает, известен ли тип записи.
func (t TimelineEventType) Valid() bool {
	switch t {
	case TimelineOrderCreated, TimelineStatusChanged, TimelineDocumentsAmended,
		TimelineDiscountApplied, TimelineDisclosureAcknowledged:
		return true
	}
	return false
}

// ParseTimelineEventTypes разбирает список типов из запроса. Пустые элементы пропускаются.
func ParseTimelineEventTypes(raw []string) ([]TimelineEventType, error) {
	var types []TimelineEventType
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t := TimelineEventType(part)
			if !t.Valid() {
				return nil, NewValidationError("timeline_types", "unknown event type "+part)
			}
			types = append(types, t)
		}
	}
	return types, nil
}

// TimelineEvent — запись журнала заказа. Seq нумерует записи одного заказа
// с единицы; порядок журнала — порядок Seq, а не Occurred.
type TimelineEvent struct {
	OrderID string
	Seq     int64
	Type    TimelineEventType
	// From — статус до события; пуст, если статус не менялся.
	From OrderStatus
	// Status — статус заказа после события.
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// Validate проверяет запись перед добавлением.
func (e TimelineEvent) Validate() error {
	if strings.TrimSpace(e.OrderID) == "" {
		return NewValidationError("order_id", "is required")
	}
	if !e.Type.Valid() {
		return NewValidationError("type", "unknown timeline event type "+string(e.Type))
	}
	return nil
}

// TimelineFilter сужает выборку журнала. Пустой фильтр отдаёт всё.
type TimelineFilter struct {
	Types []TimelineEventType
	// AfterSeq отдаёт только записи с Seq больше заданного.
	AfterSeq int64
}

// Match сообщает, проходит ли запись фильтр.
func (f TimelineFilter) Match(e TimelineEvent) bool {
	if e.Seq <= f.AfterSeq {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

// TypeNames возвращает типы фильтра строками для SQL.
func (f TimelineFilter) TypeNames() []string {
	names := make([]string, 0, len(f.Types))
	for _, t := range f.Types {
		names = append(names, string(t))
	}
	return names
}
