package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const queueColumns = `id, payment_id, order_id, payment_session_id, webhook_type, payload,
	attempts, last_error, claimed_until, dead_lettered_at, created_at, processed_at`

// priorityOrder mirrors domain.WebhookTypePriority in SQL.
const priorityOrder = `CASE webhook_type
		WHEN 'payment_approved' THEN 1 WHEN 'charge.succeeded' THEN 1
		WHEN 'payment_captured' THEN 2 WHEN 'charge.captured' THEN 2
		ELSE 3 END, created_at, id`

// QueueRepo implements ports.QueueRepository on the webhook_queue table.
type QueueRepo struct {
	pool Pool
	now  func() time.Time
}

// NewQueueRepo creates a new QueueRepo.
func NewQueueRepo(pool Pool) *QueueRepo {
	return &QueueRepo{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func scanEntry(row pgx.Row) (*domain.QueueEntry, error) {
	e := &domain.QueueEntry{}
	err := row.Scan(
		&e.ID, &e.PaymentID, &e.OrderID, &e.PaymentSessionID, &e.WebhookType, &e.Payload,
		&e.Attempts, &e.LastError, &e.ClaimedUntil, &e.DeadLetteredAt, &e.CreatedAt, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]domain.QueueEntry, error) {
	defer rows.Close()
	var entries []domain.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Enqueue inserts the entry and sets its ID. The payload is written verbatim.
func (r *QueueRepo) Enqueue(ctx context.Context, entry *domain.QueueEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	query := `INSERT INTO webhook_queue (payment_id, order_id, payment_session_id, webhook_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		entry.PaymentID, entry.OrderID, entry.PaymentSessionID,
		entry.WebhookType, entry.Payload, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

// GetByID fetches an entry by id. Returns nil, nil if it does not exist.
func (r *QueueRepo) GetByID(ctx context.Context, id int64) (*domain.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM webhook_queue WHERE id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

// ClaimBatch leases claimable entries with SKIP LOCKED so concurrent passes
// never receive the same row. Results come back in processing order.
func (r *QueueRepo) ClaimBatch(ctx context.Context, filter ports.ClaimFilter, limit int, lease time.Duration) ([]domain.QueueEntry, error) {
	args := []interface{}{limit, lease.Seconds(), uuid.New()}
	argIdx := 4

	where := []string{
		"processed_at IS NULL",
		"dead_lettered_at IS NULL",
		"(claimed_until IS NULL OR claimed_until < NOW())",
	}

	if filter.IsScoped() {
		var or []string
		if filter.OrderID != "" {
			or = append(or, fmt.Sprintf("order_id = $%d", argIdx))
			args = append(args, filter.OrderID)
			argIdx++
		}
		if filter.PaymentID != "" {
			or = append(or, fmt.Sprintf("payment_id = $%d", argIdx))
			args = append(args, filter.PaymentID)
			argIdx++
		}
		if filter.PaymentSessionID != "" {
			or = append(or, fmt.Sprintf("payment_session_id = $%d", argIdx))
			args = append(args, filter.PaymentSessionID)
		}
		where = append(where, "("+strings.Join(or, " OR ")+")")
	}

	orderBy := "id"
	if filter.Prioritized {
		orderBy = priorityOrder
	}

	query := fmt.Sprintf(`WITH candidates AS (
		SELECT id FROM webhook_queue
		WHERE %s
		ORDER BY %s
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE webhook_queue q
	SET claimed_until = NOW() + make_interval(secs => $2), claim_token = $3
	FROM candidates c
	WHERE q.id = c.id
	RETURNING q.id, q.payment_id, q.order_id, q.payment_session_id, q.webhook_type, q.payload,
		q.attempts, q.last_error, q.claimed_until, q.dead_lettered_at, q.created_at, q.processed_at`,
		strings.Join(where, " AND "), orderBy)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim queue entries: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("claim queue entries: %w", err)
	}

	domain.SortForDispatch(entries, filter.Prioritized)
	return entries, nil
}

// MarkProcessed sets processed_at inside tx. The guard on processed_at keeps
// the transition one-way; false means another pass already processed it.
func (r *QueueRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, id int64, orderID *string) (bool, error) {
	query := `UPDATE webhook_queue
		SET processed_at = $2, order_id = COALESCE(order_id, $3), claimed_until = NULL, claim_token = NULL
		WHERE id = $1 AND processed_at IS NULL`

	tag, err := tx.Exec(ctx, query, id, r.now(), orderID)
	if err != nil {
		return false, fmt.Errorf("mark queue entry processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailure bumps the attempt counter and releases the lease.
// Returns 0 if the entry is gone or already processed.
func (r *QueueRepo) RecordFailure(ctx context.Context, id int64, errMsg string) (int, error) {
	query := `UPDATE webhook_queue
		SET attempts = attempts + 1, last_error = $2, claimed_until = NULL, claim_token = NULL
		WHERE id = $1 AND processed_at IS NULL
		RETURNING attempts`

	var attempts int
	err := r.pool.QueryRow(ctx, query, id, errMsg).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("record queue failure: %w", err)
	}
	return attempts, nil
}

// ReleaseClaim drops the lease without counting an attempt.
func (r *QueueRepo) ReleaseClaim(ctx context.Context, id int64) error {
	query := `UPDATE webhook_queue SET claimed_until = NULL, claim_token = NULL
		WHERE id = $1 AND processed_at IS NULL`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("release queue claim: %w", err)
	}
	return nil
}

// Stats returns queue counters in a single scan.
func (r *QueueRepo) Stats(ctx context.Context) (*domain.QueueStats, error) {
	query := `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND dead_lettered_at IS NULL),
			COUNT(*) FILTER (WHERE processed_at IS NOT NULL),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND dead_lettered_at IS NOT NULL)
		FROM webhook_queue`

	s := &domain.QueueStats{}
	if err := r.pool.QueryRow(ctx, query).Scan(&s.Total, &s.Pending, &s.Processed, &s.DeadLettered); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return s, nil
}

// ListRecent returns the newest entries first.
func (r *QueueRepo) ListRecent(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM webhook_queue ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent queue entries: %w", err)
	}
	return collectEntries(rows)
}

// DeleteProcessedBefore removes processed entries whose processed_at is older than cutoff.
func (r *QueueRepo) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_queue WHERE processed_at IS NOT NULL AND processed_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed queue entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteUnprocessedBefore removes never-processed entries created before cutoff.
func (r *QueueRepo) DeleteUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_queue WHERE processed_at IS NULL AND created_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete unprocessed queue entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteDeadLetteredBefore purges entries that were dead-lettered before cutoff.
func (r *QueueRepo) DeleteDeadLetteredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_queue WHERE dead_lettered_at IS NOT NULL AND dead_lettered_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete dead-lettered queue entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeadLetterUnprocessedBefore parks never-processed entries created before cutoff.
func (r *QueueRepo) DeadLetterUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE webhook_queue
		SET dead_lettered_at = $2, claimed_until = NULL, claim_token = NULL
		WHERE processed_at IS NULL AND dead_lettered_at IS NULL AND created_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff, r.now())
	if err != nil {
		return 0, fmt.Errorf("dead-letter queue entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
