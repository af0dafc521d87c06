package memory

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	repo := NewOutboxRepository()

	var ids []string
	for _, status := range []string{"pending", "accepted", "ready"} {
		saved, err := repo.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "order-1",
			EventType:     domain.OutboxEventStatusChanged,
			Payload:       []byte(`{"status":"` + status + `"}`),
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		if saved.ID == "" {
			t.Fatal("expected generated id")
		}
		ids = append(ids, saved.ID)
	}
	if _, err := repo.Enqueue(domain.OutboxMessage{AggregateID: "order-1", EventType: domain.OutboxEventNotification}); err != nil {
		t.Fatalf("enqueue notification failed: %v", err)
	}

	pending, err := repo.PullPending(2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != ids[0] || pending[1].ID != ids[1] {
		t.Fatal("expected messages in enqueue order")
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 4 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.PendingByStream[domain.OutboxStreamLifecycle] != 3 || stats.PendingByStream[domain.OutboxStreamNotifications] != 1 {
		t.Fatalf("unexpected per-stream backlog: %+v", stats.PendingByStream)
	}
}

func TestOutboxRepository_FinishesOnlyPendingMessages(t *testing.T) {
	repo := NewOutboxRepository()

	sent, err := repo.Enqueue(domain.OutboxMessage{AggregateType: "order", EventType: domain.OutboxEventNotification})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	failed, err := repo.Enqueue(domain.OutboxMessage{AggregateType: "order", EventType: domain.OutboxEventStatusChanged})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if got := len(repo.PendingByType(domain.OutboxEventNotification)); got != 1 {
		t.Fatalf("expected 1 pending notification, got %d", got)
	}

	if err := repo.MarkSent(sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(failed.ID, "broker unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if len(repo.AllPending()) != 0 {
		t.Fatal("finished messages must leave the pending set")
	}
	if reason, ok := repo.FailureReason(failed.ID); !ok || reason != "broker unavailable" {
		t.Fatalf("unexpected failure reason %q %v", reason, ok)
	}
	if _, ok := repo.FailureReason(sent.ID); ok {
		t.Fatal("sent message has no failure reason")
	}

	if err := repo.MarkFailed(sent.ID, "late"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound for finished message, got %v", err)
	}
	if err := repo.MarkSent("missing"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound for missing message, got %v", err)
	}
}

func TestOutboxRepository_EnqueueCopiesPayload(t *testing.T) {
	repo := NewOutboxRepository()

	payload := []byte(`{"status":"ready"}`)
	if _, err := repo.Enqueue(domain.OutboxMessage{EventType: domain.OutboxEventStatusChanged, Payload: payload}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	payload[2] = 'X'

	pending := repo.AllPending()
	if string(pending[0].Payload) != `{"status":"ready"}` {
		t.Fatalf("stored payload changed with caller buffer: %s", pending[0].Payload)
	}
}
