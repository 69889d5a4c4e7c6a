package domain

import (
	"sort"
	"time"
)

// QueueEntry is one received webhook awaiting or having completed dispatch.
// Payload holds the request body exactly as received and is never rewritten.
type QueueEntry struct {
	ID               int64      `json:"id"`
	PaymentID        string     `json:"payment_id"`
	OrderID          *string    `json:"order_id,omitempty"`
	PaymentSessionID *string    `json:"payment_session_id,omitempty"`
	WebhookType      string     `json:"webhook_type"`
	Payload          string     `json:"payload"`
	Attempts         int        `json:"attempts"`
	LastError        *string    `json:"last_error,omitempty"`
	ClaimedUntil     *time.Time `json:"-"`
	DeadLetteredAt   *time.Time `json:"dead_lettered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// IsProcessed reports whether dispatch has completed for the entry.
func (e *QueueEntry) IsProcessed() bool {
	return e.ProcessedAt != nil
}

// IsDeadLettered reports whether cleanup parked the entry.
func (e *QueueEntry) IsDeadLettered() bool {
	return e.DeadLetteredAt != nil
}

// IsClaimable reports whether a dispatch pass may lease the entry at now.
func (e *QueueEntry) IsClaimable(now time.Time) bool {
	if e.IsProcessed() || e.IsDeadLettered() {
		return false
	}
	return e.ClaimedUntil == nil || e.ClaimedUntil.Before(now)
}

// Priority orders entries of one order when they are flushed together:
// authorizations first, then captures, then everything else.
func (e *QueueEntry) Priority() int {
	return WebhookTypePriority(e.WebhookType)
}

// WebhookTypePriority returns the flush priority of a declared webhook type.
func WebhookTypePriority(webhookType string) int {
	switch webhookType {
	case "payment_approved", "charge.succeeded":
		return 1
	case "payment_captured", "charge.captured":
		return 2
	default:
		return 3
	}
}

// SortForDispatch orders entries by id, or by flush priority then creation
// time when prioritized.
func SortForDispatch(entries []QueueEntry, prioritized bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if prioritized {
			if pa, pb := a.Priority(), b.Priority(); pa != pb {
				return pa < pb
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
}

// QueueStats holds queue counters for the admin surface.
type QueueStats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Processed    int64 `json:"processed"`
	DeadLettered int64 `json:"dead_lettered"`
}

// CleanupBucket selects which entries a cleanup run targets.
type CleanupBucket string

const (
	CleanupBucketProcessed   CleanupBucket = "processed"
	CleanupBucketUnprocessed CleanupBucket = "unprocessed"
)

// UnprocessedPolicy decides what happens to entries that never dispatched.
type UnprocessedPolicy string

const (
	UnprocessedPolicyDeadLetter UnprocessedPolicy = "dead_letter"
	UnprocessedPolicyDelete     UnprocessedPolicy = "delete"
)

// DefaultRetentionDays is the minimum age before cleanup touches an entry.
const DefaultRetentionDays = 7

// DefaultDeadLetterRetentionDays is how long dead-lettered entries stay
// visible to admins before the sweep purges them.
const DefaultDeadLetterRetentionDays = 30
