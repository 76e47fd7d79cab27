package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
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

type outboxRepository struct{ sc scope }

// Enqueue сохраняет событие со статусом `pending`. В транзакции запись откатывается вместе с ней.
func (r outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	err := r.sc.update(func(st *state) (func(*state), error) {
		now := time.Now().UTC()
		st.outboxSeq++
		st.outbox[msg.ID] = &outboxRecord{
			msg:       msg,
			status:    outboxStatusPending,
			seq:       st.outboxSeq,
			createdAt: now,
			updatedAt: now,
		}
		return func(st *state) { delete(st.outbox, msg.ID) }, nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке записи.
func (r outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []*outboxRecord
	_ = r.sc.view(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.status == outboxStatusPending {
				pending = append(pending, rec)
			}
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
		if len(pending) > limit {
			pending = pending[:limit]
		}
		return nil
	})

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	_ = r.sc.view(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.status != outboxStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.createdAt
			}
		}
		return nil
	})
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusSent)
}

// MarkFailed фиксирует окончательную ошибку публикации.
func (r outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusFailed)
}

func (r outboxRepository) markStatus(id, status string) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		record, ok := st.outbox[id]
		if !ok {
			return nil, domain.ErrOutboxPublish
		}
		prev := *record
		record.status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		return func(st *state) { *st.outbox[id] = prev }, nil
	})
}

// OutboxSnapshot возвращает сообщения по статусам (используется в тестах).
func (s *Store) OutboxSnapshot() (pending, sent, failed []domain.OutboxMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*outboxRecord, 0, len(s.st.outbox))
	for _, rec := range s.st.outbox {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	for _, rec := range records {
		switch rec.status {
		case outboxStatusPending:
			pending = append(pending, rec.msg)
		case outboxStatusSent:
			sent = append(sent, rec.msg)
		case outboxStatusFailed:
			failed = append(failed, rec.msg)
		}
	}
	return pending, sent, failed
}

var _ domain.OutboxRepository = outboxRepository{}
