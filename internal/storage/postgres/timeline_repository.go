package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// appendAttempts — сколько раз Append пересчитывает seq при гонке двух записей одного заказа.
const appendAttempts = 3

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт журнал заказов в PostgreSQL.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

// Append берёт следующий seq заказа в том же INSERT; (order_id, seq) — первичный
// ключ, поэтому параллельная запись получает 23505 и пересчитывает seq.
func (r *timelineRepository) Append(event domain.TimelineEvent) (domain.TimelineEvent, error) {
	if err := event.Validate(); err != nil {
		return domain.TimelineEvent{}, err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO timeline_events (order_id, seq, type, from_status, status, reason, occurred)
			SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6
			FROM timeline_events WHERE order_id = $1
			RETURNING seq
		`, event.OrderID, string(event.Type), string(event.From), string(event.Status), event.Reason, event.Occurred).Scan(&event.Seq)
		if err == nil {
			return event, nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	return domain.TimelineEvent{}, fmt.Errorf("append %s to timeline of order %s: %w", event.Type, event.OrderID, err)
}

func (r *timelineRepository) List(orderID string, filter domain.TimelineFilter) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var types []string
	if len(filter.Types) > 0 {
		types = filter.TypeNames()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, type, from_status, status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1 AND seq > $2 AND ($3::text[] IS NULL OR type = ANY($3))
		ORDER BY seq
	`, orderID, filter.AfterSeq, types)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		var kind, from, status string
		if err := rows.Scan(&event.Seq, &kind, &from, &status, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Type = domain.TimelineEventType(kind)
		event.From = domain.OrderStatus(from)
		event.Status = domain.OrderStatus(status)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline of order %s: %w", orderID, err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
