package service

import (
	"context"
	"errors"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/observability"

	"github.com/rs/zerolog"
)

// cleanupService implements ports.CleanupService.
type cleanupService struct {
	queue          ports.QueueRepository
	policy         domain.UnprocessedPolicy
	retentionDays  int
	deadLetterDays int
	log            zerolog.Logger
	now            func() time.Time
}

// NewCleanupService creates a new cleanup service. An unrecognized policy
// falls back to dead-lettering. deadLetterDays bounds how long the sweep
// keeps dead-lettered entries.
func NewCleanupService(queue ports.QueueRepository, policy domain.UnprocessedPolicy, retentionDays, deadLetterDays int, log zerolog.Logger) ports.CleanupService {
	if policy != domain.UnprocessedPolicyDelete {
		policy = domain.UnprocessedPolicyDeadLetter
	}
	if retentionDays < 1 {
		retentionDays = domain.DefaultRetentionDays
	}
	if deadLetterDays < 1 {
		deadLetterDays = domain.DefaultDeadLetterRetentionDays
	}
	return &cleanupService{
		queue:          queue,
		policy:         policy,
		retentionDays:  retentionDays,
		deadLetterDays: deadLetterDays,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *cleanupService) cutoff(days int) time.Time {
	return s.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// CleanupProcessed deletes processed entries whose processed_at is older than days.
func (s *cleanupService) CleanupProcessed(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, apperror.ErrInvalidCleanupAge(days)
	}

	n, err := s.queue.DeleteProcessedBefore(ctx, s.cutoff(days))
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}

	observability.RecordCleanup(string(domain.CleanupBucketProcessed), "delete", n)
	s.log.Info().Int("days", days).Int64("deleted", n).Msg("Processed webhooks cleaned up")
	return n, nil
}

// CleanupUnprocessed retires entries that never dispatched, per the configured policy.
func (s *cleanupService) CleanupUnprocessed(ctx context.Context, days int) (*ports.CleanupResult, error) {
	if days < 1 {
		return nil, apperror.ErrInvalidCleanupAge(days)
	}
	cutoff := s.cutoff(days)

	var (
		n   int64
		err error
	)
	switch s.policy {
	case domain.UnprocessedPolicyDelete:
		n, err = s.queue.DeleteUnprocessedBefore(ctx, cutoff)
	default:
		n, err = s.queue.DeadLetterUnprocessedBefore(ctx, cutoff)
	}
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	observability.RecordCleanup(string(domain.CleanupBucketUnprocessed), string(s.policy), n)
	if n > 0 {
		// Every one of these is a webhook that never reached its order.
		s.log.Error().
			Int("days", days).
			Int64("count", n).
			Str("policy", string(s.policy)).
			Msg("Unprocessed webhooks retired")
	} else {
		s.log.Info().Int("days", days).Str("policy", string(s.policy)).Msg("No stale unprocessed webhooks")
	}

	return &ports.CleanupResult{
		Bucket:   domain.CleanupBucketUnprocessed,
		Policy:   s.policy,
		Affected: n,
	}, nil
}

// purgeDeadLettered deletes entries dead-lettered more than days ago.
func (s *cleanupService) purgeDeadLettered(ctx context.Context, days int) (int64, error) {
	n, err := s.queue.DeleteDeadLetteredBefore(ctx, s.cutoff(days))
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}

	observability.RecordCleanup("dead_lettered", "delete", n)
	s.log.Info().Int("days", days).Int64("deleted", n).Msg("Dead-lettered webhooks purged")
	return n, nil
}

// Sweep runs both cleanups with the configured retention, then purges
// dead-lettered entries past their own retention.
func (s *cleanupService) Sweep(ctx context.Context) error {
	_, errProcessed := s.CleanupProcessed(ctx, s.retentionDays)
	_, errUnprocessed := s.CleanupUnprocessed(ctx, s.retentionDays)
	_, errDeadLettered := s.purgeDeadLettered(ctx, s.deadLetterDays)
	return errors.Join(errProcessed, errUnprocessed, errDeadLettered)
}
