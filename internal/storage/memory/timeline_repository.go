package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// TimelineRepository — журнал заказов в памяти: по срезу записей на заказ,
// Seq равен позиции записи плюс один.
type TimelineRepository struct {
	mu     sync.RWMutex
	orders map[string][]domain.TimelineEvent
	now    func() time.Time
}

// NewTimelineRepository создаёт журнал заказов в памяти.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{
		orders: make(map[string][]domain.TimelineEvent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *TimelineRepository) Append(event domain.TimelineEvent) (domain.TimelineEvent, error) {
	if err := event.Validate(); err != nil {
		return domain.TimelineEvent{}, err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	journal := r.orders[event.OrderID]
	event.Seq = int64(len(journal)) + 1
	r.orders[event.OrderID] = append(journal, event)
	return event, nil
}

func (r *TimelineRepository) List(orderID string, filter domain.TimelineFilter) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	journal := r.orders[orderID]
	start := min(max(filter.AfterSeq, 0), int64(len(journal)))

	result := make([]domain.TimelineEvent, 0, int64(len(journal))-start)
	for _, event := range journal[start:] {
		if filter.Match(event) {
			result = append(result, event)
		}
	}
	return result, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
