package memory

import (
	"context"
	"sort"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// QueueRepo implements ports.QueueRepository over a Store.
type QueueRepo struct{ s *Store }

// Queue returns the store's queue repository.
func (s *Store) Queue() *QueueRepo { return &QueueRepo{s: s} }

func copyEntry(e *domain.QueueEntry) domain.QueueEntry {
	c := *e
	return c
}

func (r *QueueRepo) Enqueue(ctx context.Context, entry *domain.QueueEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextEntryID++
	entry.ID = r.s.nextEntryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	stored := copyEntry(entry)
	r.s.entries[entry.ID] = &stored
	return nil
}

func (r *QueueRepo) GetByID(ctx context.Context, id int64) (*domain.QueueEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[id]
	if !ok {
		return nil, nil
	}
	c := copyEntry(e)
	return &c, nil
}

func (r *QueueRepo) matches(e *domain.QueueEntry, f ports.ClaimFilter) bool {
	if !f.IsScoped() {
		return true
	}
	if f.OrderID != "" && e.OrderID != nil && *e.OrderID == f.OrderID {
		return true
	}
	if f.PaymentID != "" && e.PaymentID == f.PaymentID {
		return true
	}
	return f.PaymentSessionID != "" && e.PaymentSessionID != nil && *e.PaymentSessionID == f.PaymentSessionID
}

func (r *QueueRepo) ClaimBatch(ctx context.Context, filter ports.ClaimFilter, limit int, lease time.Duration) ([]domain.QueueEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var candidates []domain.QueueEntry
	for _, e := range r.s.entries {
		if e.IsClaimable(now) && r.matches(e, filter) {
			candidates = append(candidates, copyEntry(e))
		}
	}
	domain.SortForDispatch(candidates, filter.Prioritized)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(lease)
	for i := range candidates {
		r.s.entries[candidates[i].ID].ClaimedUntil = &until
		candidates[i].ClaimedUntil = &until
	}
	return candidates, nil
}

func (r *QueueRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, id int64, orderID *string) (bool, error) {
	t, err := r.s.own(tx)
	if err != nil {
		return false, err
	}

	e, ok := r.s.entries[id]
	if !ok || e.IsProcessed() {
		return false, nil
	}
	prev := copyEntry(e)
	t.onRollback(func() { *e = prev })

	now := r.s.now()
	e.ProcessedAt = &now
	e.ClaimedUntil = nil
	if e.OrderID == nil && orderID != nil {
		id := *orderID
		e.OrderID = &id
	}
	return true, nil
}

func (r *QueueRepo) RecordFailure(ctx context.Context, id int64, errMsg string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[id]
	if !ok || e.IsProcessed() {
		return 0, nil
	}
	e.Attempts++
	msg := errMsg
	e.LastError = &msg
	e.ClaimedUntil = nil
	return e.Attempts, nil
}

func (r *QueueRepo) ReleaseClaim(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if e, ok := r.s.entries[id]; ok && !e.IsProcessed() {
		e.ClaimedUntil = nil
	}
	return nil
}

func (r *QueueRepo) Stats(ctx context.Context) (*domain.QueueStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st := &domain.QueueStats{}
	for _, e := range r.s.entries {
		st.Total++
		switch {
		case e.IsProcessed():
			st.Processed++
		case e.IsDeadLettered():
			st.DeadLettered++
		default:
			st.Pending++
		}
	}
	return st, nil
}

func (r *QueueRepo) ListRecent(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]domain.QueueEntry, 0, len(r.s.entries))
	for _, e := range r.s.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *QueueRepo) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, e := range r.s.entries {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
			delete(r.s.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *QueueRepo) DeleteUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, e := range r.s.entries {
		if e.ProcessedAt == nil && e.CreatedAt.Before(cutoff) {
			delete(r.s.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *QueueRepo) DeadLetterUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var n int64
	for _, e := range r.s.entries {
		if e.ProcessedAt == nil && e.DeadLetteredAt == nil && e.CreatedAt.Before(cutoff) {
			t := now
			e.DeadLetteredAt = &t
			e.ClaimedUntil = nil
			n++
		}
	}
	return n, nil
}

func (r *QueueRepo) DeleteDeadLetteredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, e := range r.s.entries {
		if e.DeadLetteredAt != nil && e.DeadLetteredAt.Before(cutoff) {
			delete(r.s.entries, id)
			n++
		}
	}
	return n, nil
}
