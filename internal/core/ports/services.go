package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"payment-webhook-queue/internal/core/domain"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// AppliedActionCache is the Redis-layer replay check (fast path).
// The order_actions ledger stays authoritative.
type AppliedActionCache interface {
	Seen(ctx context.Context, orderID string, kind domain.EventKind, actionID string) (bool, error)
	Mark(ctx context.Context, orderID string, kind domain.EventKind, actionID string, ttl time.Duration) error
}

// PassLock serializes background jobs across replicas.
type PassLock interface {
	// Acquire returns a release token and true if the lock was taken.
	Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, name string, token string) error
}

// --- Service Ports (Business Logic) ---

// WebhookAuthenticator verifies inbound processor credentials.
type WebhookAuthenticator interface {
	Authenticate(authorization string, signature string, body []byte) error
}

// WebhookReceiver parses and durably enqueues an authenticated webhook body.
type WebhookReceiver interface {
	Receive(ctx context.Context, body []byte) (*domain.QueueEntry, error)
}

// EventDispatcher applies unprocessed queue entries to orders.
type EventDispatcher interface {
	RunPass(ctx context.Context, filter ClaimFilter) (*PassResult, error)
}

// DispatchStrategy decides what happens right after an entry is enqueued.
type DispatchStrategy interface {
	AfterEnqueue(ctx context.Context, entry *domain.QueueEntry)
}

// PassResult summarizes one dispatch pass.
type PassResult struct {
	Claimed    int `json:"claimed"`
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Deferred   int `json:"deferred"`
}

// CleanupService retires aged queue entries.
type CleanupService interface {
	CleanupProcessed(ctx context.Context, days int) (int64, error)
	CleanupUnprocessed(ctx context.Context, days int) (*CleanupResult, error)
	Sweep(ctx context.Context) error
}

// CleanupResult reports what an unprocessed cleanup did.
type CleanupResult struct {
	Bucket   domain.CleanupBucket     `json:"bucket"`
	Policy   domain.UnprocessedPolicy `json:"policy,omitempty"`
	Affected int64                    `json:"affected"`
}

// AdminService backs the read-only inspection surface.
type AdminService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
	Stats(ctx context.Context) (*domain.QueueStats, error)
	Recent(ctx context.Context, limit int) ([]domain.QueueEntry, error)
	GetOrder(ctx context.Context, orderID string) (*OrderView, error)
}

// OrderView is an order with its notes and refunds.
type OrderView struct {
	Order   *domain.Order      `json:"order"`
	Notes   []domain.OrderNote `json:"notes"`
	Refunds []domain.Refund    `json:"refunds"`
}

// OrderService registers orders and flushes webhooks that arrived before them.
type OrderService interface {
	RegisterOrder(ctx context.Context, req RegisterOrderRequest) (*domain.Order, *PassResult, error)
}

// RegisterOrderRequest holds validated input for order intake.
type RegisterOrderRequest struct {
	OrderID          string
	TotalMinor       int64
	Currency         string
	PaymentID        string
	PaymentSessionID string
	Items            []domain.OrderItem
}
