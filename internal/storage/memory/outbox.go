package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        int64
	createdAt  time.Time
	updatedAt  time.Time
}

type outboxWriter struct{ tx *memTx }

// Enqueue сохраняет событие со статусом `pending`; оно станет видно воркеру после фиксации транзакции.
func (w outboxWriter) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := w.tx.writable(); err != nil {
		return domain.OutboxMessage{}, err
	}
	return enqueue(w.tx.st, msg), nil
}

func enqueue(st *state, msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	st.seq.outbox++
	now := time.Now().UTC()
	st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		seq:       st.seq.outbox,
		createdAt: now,
		updatedAt: now,
	}
	return msg
}

// Enqueue ставит событие в outbox вне бизнес-транзакции.
func (s *Store) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	var stored domain.OutboxMessage
	_ = s.update(func(st *state) error {
		stored = enqueue(st, msg)
		return nil
	})
	return stored, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (s *Store) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := pendingRecords(s.snapshot())
	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (s *Store) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := pendingRecords(s.snapshot())
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (s *Store) MarkSent(_ context.Context, id string) error {
	return s.markOutbox(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (s *Store) MarkFailed(_ context.Context, id string) error {
	return s.markOutbox(id, outboxStatusFailed)
}

func (s *Store) markOutbox(id, status string) error {
	return s.update(func(st *state) error {
		record, ok := st.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		record.status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		st.outbox[id] = record
		return nil
	})
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (s *Store) AllPending() []domain.OutboxMessage {
	pending := pendingRecords(s.snapshot())
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result
}

func pendingRecords(st *state) []outboxRecord {
	pending := make([]outboxRecord, 0)
	for _, rec := range st.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}
