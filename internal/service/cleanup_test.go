package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-webhook-queue/internal/adapter/storage/memory"
	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var cleanupNow = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

// seedAt enqueues an entry at the given age and optionally marks it
// processed at the same moment.
func seedAt(t *testing.T, s *memory.Store, age time.Duration, processed bool) int64 {
	t.Helper()
	ctx := context.Background()
	at := cleanupNow.Add(-age)
	s.SetClock(func() time.Time { return at })
	defer s.SetClock(func() time.Time { return cleanupNow })

	e := &domain.QueueEntry{PaymentID: "pay_1", WebhookType: "payment_captured", Payload: `{}`}
	require.NoError(t, s.Queue().Enqueue(ctx, e))
	if processed {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = s.Queue().MarkProcessed(ctx, tx, e.ID, nil)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
	}
	return e.ID
}

func newTestCleanup(s *memory.Store, policy domain.UnprocessedPolicy) *cleanupService {
	svc := NewCleanupService(s.Queue(), policy, 7, 30, zerolog.Nop()).(*cleanupService)
	svc.now = func() time.Time { return cleanupNow }
	return svc
}

func TestCleanupProcessed_OnlyOldProcessed(t *testing.T) {
	s := memory.NewStore()
	day := 24 * time.Hour

	oldProcessed := seedAt(t, s, 8*day, true)
	recentProcessed := seedAt(t, s, 6*day, true)
	ancientPending := seedAt(t, s, 90*day, false)

	svc := newTestCleanup(s, domain.UnprocessedPolicyDeadLetter)
	n, err := svc.CleanupProcessed(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := s.Queue().GetByID(context.Background(), oldProcessed)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.True(t, getEntry(t, s, recentProcessed).IsProcessed())
	assert.False(t, getEntry(t, s, ancientPending).IsProcessed())
}

func TestCleanupUnprocessed_DeadLetter(t *testing.T) {
	s := memory.NewStore()
	day := 24 * time.Hour

	stuck := seedAt(t, s, 10*day, false)
	young := seedAt(t, s, 2*day, false)
	done := seedAt(t, s, 10*day, true)

	svc := newTestCleanup(s, domain.UnprocessedPolicyDeadLetter)
	res, err := svc.CleanupUnprocessed(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.CleanupBucketUnprocessed, res.Bucket)
	assert.Equal(t, domain.UnprocessedPolicyDeadLetter, res.Policy)
	assert.Equal(t, int64(1), res.Affected)

	assert.True(t, getEntry(t, s, stuck).IsDeadLettered())
	assert.False(t, getEntry(t, s, young).IsDeadLettered())
	assert.False(t, getEntry(t, s, done).IsDeadLettered())
}

func TestCleanupUnprocessed_Delete(t *testing.T) {
	s := memory.NewStore()
	stuck := seedAt(t, s, 10*24*time.Hour, false)

	svc := newTestCleanup(s, domain.UnprocessedPolicyDelete)
	res, err := svc.CleanupUnprocessed(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	gone, err := s.Queue().GetByID(context.Background(), stuck)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCleanup_RejectsBadAge(t *testing.T) {
	svc := NewCleanupService(memory.NewStore().Queue(), "", 7, 30, zerolog.Nop())

	_, err := svc.CleanupProcessed(context.Background(), 0)
	assertAppErrorCode(t, err, "ADM_001")

	_, err = svc.CleanupUnprocessed(context.Background(), -3)
	assertAppErrorCode(t, err, "ADM_001")
}

func TestCleanup_UnknownPolicyDefaultsToDeadLetter(t *testing.T) {
	svc := NewCleanupService(memory.NewStore().Queue(), "shred", 7, 0, zerolog.Nop()).(*cleanupService)
	assert.Equal(t, domain.UnprocessedPolicyDeadLetter, svc.policy)
	assert.Equal(t, domain.DefaultDeadLetterRetentionDays, svc.deadLetterDays)
}

func TestCleanup_SweepJoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockQueueRepository(ctrl)
	svc := NewCleanupService(queue, domain.UnprocessedPolicyDeadLetter, 7, 30, zerolog.Nop())

	queue.EXPECT().DeleteProcessedBefore(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("timeout"))
	queue.EXPECT().DeadLetterUnprocessedBefore(gomock.Any(), gomock.Any()).Return(int64(2), nil)
	queue.EXPECT().DeleteDeadLetteredBefore(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	err := svc.Sweep(context.Background())
	assertAppErrorCode(t, err, "SYS_001")
}

func TestCleanup_SweepPurgesOldDeadLetters(t *testing.T) {
	s := memory.NewStore()
	day := 24 * time.Hour

	deadLetterAt := func(age time.Duration) {
		s.SetClock(func() time.Time { return cleanupNow.Add(-age) })
		defer s.SetClock(func() time.Time { return cleanupNow })
		_, err := s.Queue().DeadLetterUnprocessedBefore(context.Background(), cleanupNow)
		require.NoError(t, err)
	}

	old := seedAt(t, s, 50*day, false)
	deadLetterAt(40 * day)
	recent := seedAt(t, s, 20*day, false)
	deadLetterAt(10 * day)

	svc := newTestCleanup(s, domain.UnprocessedPolicyDeadLetter)
	require.NoError(t, svc.Sweep(context.Background()))

	gone, err := s.Queue().GetByID(context.Background(), old)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.True(t, getEntry(t, s, recent).IsDeadLettered())
}
