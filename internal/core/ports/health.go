package ports

import "context"

// HealthChecker is one dependency checked by GET /health.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name is the key reported in the health payload ("postgresql", "redis", "memory").
	Name() string
}
