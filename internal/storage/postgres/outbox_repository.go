package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxBatch = 100
	// maxOutboxErrorLen ограничивает сохраняемую причину отказа.
	maxOutboxErrorLen = 1024
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт transactional outbox в PostgreSQL.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, stream, aggregate_type, aggregate_id, event_type, payload, enqueued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, msg.ID, string(msg.Stream()), msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, time.Now().UTC()); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for order %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending отдаёт pending-сообщения в порядке постановки. Выборка идёт по
// частичному индексу, завершённые сообщения её не замедляют.
func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY enqueued_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	batch := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return batch, nil
}

// Stats считает backlog по потокам одним запросом.
func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT stream, COUNT(*), MIN(enqueued_at)
		FROM outbox_messages
		WHERE status = 'pending'
		GROUP BY stream
	`)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	stats := domain.OutboxStats{PendingByStream: make(map[domain.OutboxStream]int)}
	for rows.Next() {
		var (
			stream string
			count  int
			oldest time.Time
		)
		if err := rows.Scan(&stream, &count, &oldest); err != nil {
			return domain.OutboxStats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		stats.PendingByStream[domain.OutboxStream(stream)] = count
		stats.PendingCount += count
		if stats.OldestPendingAt.IsZero() || oldest.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = oldest.UTC()
		}
	}
	if err := rows.Err(); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("iterate outbox stats: %w", err)
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.finish(id, outboxSent, "")
}

func (r *outboxRepository) MarkFailed(id, reason string) error {
	if len(reason) > maxOutboxErrorLen {
		reason = strings.ToValidUTF8(reason[:maxOutboxErrorLen], "")
	}
	return r.finish(id, outboxFailed, reason)
}

// finish переводит только pending-сообщение: повторная отметка не перетирает итог.
func (r *outboxRepository) finish(id, status, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, last_error = $3, finished_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, status, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
