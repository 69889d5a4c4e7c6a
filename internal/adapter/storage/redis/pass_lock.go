package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PassLock implements ports.PassLock with SET NX and a random owner token.
type PassLock struct {
	client *goredis.Client
	prefix string
}

// NewPassLock creates a new Redis-backed job lock.
func NewPassLock(client *goredis.Client) *PassLock {
	return &PassLock{
		client: client,
		prefix: keyPrefix + "lock:",
	}
}

// Acquire takes the named lock for ttl. Returns false if another holder has it.
func (l *PassLock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	result, err := l.client.SetArgs(ctx, l.prefix+name, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis lock acquire: %w", err)
	}
	return token, result == "OK", nil
}

// Release drops the lock if token still owns it. A lock that already expired
// or was taken over is left alone.
func (l *PassLock) Release(ctx context.Context, name string, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, token).Err(); err != nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}
