package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestOutbox_EnqueueAndPull(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "1",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_id":1}`),
	}

	saved, err := store.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := store.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutbox_TxEnqueueVisibleOnlyAfterCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventOrderPlaced}); err != nil {
			return err
		}
		return errors.New("rollback")
	})
	if err == nil {
		t.Fatal("expected rollback error")
	}
	if got := len(store.AllPending()); got != 0 {
		t.Fatalf("rolled back event must not be pending, got %d", got)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventOrderPlaced})
		return err
	})
	if err != nil {
		t.Fatalf("enqueue in tx failed: %v", err)
	}
	if got := len(store.AllPending()); got != 1 {
		t.Fatalf("expected 1 pending after commit, got %d", got)
	}
}

func TestOutbox_PullKeepsEnqueueOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		msg, _ := store.Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventOrderPlaced})
		ids = append(ids, msg.ID)
	}

	pending, _ := store.PullPending(ctx, 3)
	if len(pending) != 3 {
		t.Fatalf("expected limit to apply, got %d", len(pending))
	}
	for i, msg := range pending {
		if msg.ID != ids[i] {
			t.Fatalf("message %d out of order", i)
		}
	}
}

func TestOutbox_MarkSentAndFailed(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	saved, err := store.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := store.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if got := len(store.AllPending()); got != 0 {
		t.Fatalf("sent message must leave pending, got %d", got)
	}

	if err := store.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := store.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for missing record, got %v", err)
	}
}
