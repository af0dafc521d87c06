package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

// outboxEntry — сообщение в очереди вместе с итогом доставки.
type outboxEntry struct {
	msg        domain.OutboxMessage
	state      outboxState
	lastError  string
	enqueuedAt time.Time
}

// OutboxRepository — transactional outbox в памяти. Очередь хранит сообщения
// в порядке постановки; завершённые остаются в ней для проверок в тестах.
type OutboxRepository struct {
	mu    sync.RWMutex
	queue []*outboxEntry
	byID  map[string]*outboxEntry
	now   func() time.Time
}

// NewOutboxRepository создаёт outbox в памяти.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &outboxEntry{msg: msg, enqueuedAt: r.now()}
	r.queue = append(r.queue, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

// PullPending отдаёт до limit pending-сообщений в порядке постановки.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.pending(limit, nil), nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OutboxStats{PendingByStream: make(map[domain.OutboxStream]int)}
	for _, entry := range r.queue {
		if entry.state != outboxPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = entry.enqueuedAt
		}
		stats.PendingCount++
		stats.PendingByStream[entry.msg.Stream()]++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(id string) error {
	return r.finish(id, outboxSent, "")
}

func (r *OutboxRepository) MarkFailed(id, reason string) error {
	return r.finish(id, outboxFailed, reason)
}

func (r *OutboxRepository) finish(id string, state outboxState, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok || entry.state != outboxPending {
		return domain.ErrOutboxMessageNotFound
	}
	entry.state = state
	entry.lastError = reason
	return nil
}

// AllPending возвращает все pending-сообщения.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	return r.pending(0, nil)
}

// PendingByType отбирает pending-сообщения заданного типа.
func (r *OutboxRepository) PendingByType(eventType string) []domain.OutboxMessage {
	return r.pending(0, func(msg domain.OutboxMessage) bool { return msg.EventType == eventType })
}

// FailureReason возвращает причину отказа для failed-сообщения.
func (r *OutboxRepository) FailureReason(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byID[id]
	if !ok || entry.state != outboxFailed {
		return "", false
	}
	return entry.lastError, true
}

// pending собирает pending-сообщения; limit 0 — без ограничения.
func (r *OutboxRepository) pending(limit int, keep func(domain.OutboxMessage) bool) []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.OutboxMessage
	for _, entry := range r.queue {
		if entry.state != outboxPending || (keep != nil && !keep(entry.msg)) {
			continue
		}
		result = append(result, entry.msg)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
