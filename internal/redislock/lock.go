// Package redislock provides the single-holder distributed mutex that
// gates a binlog sync run. Acquisition is an atomic set-if-absent with a
// millisecond TTL; release is a compare-and-delete script so a holder can
// never delete another holder's lock.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only when the stored token matches the
// caller's. Single round trip, atomic on the server.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// ErrNotAcquired is returned by AcquireWithRetry when the budget runs out
var ErrNotAcquired = errors.New("lock not acquired within budget")

// Handle identifies one successful acquisition. The token is random per
// acquisition; Release compares it before deleting.
type Handle struct {
	Key   string
	Token string
}

// Locker acquires and releases named locks on a Redis server
type Locker struct {
	rdb *redis.Client
}

// New creates a Locker on an existing client
func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// TryAcquire attempts a single set-if-absent with the given TTL. A nil
// handle with nil error means another holder owns the key.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Handle{Key: key, Token: token}, nil
}

// AcquireWithRetry polls TryAcquire at the given interval until the budget
// is exhausted. Returns ErrNotAcquired when every attempt observed another
// holder.
func (l *Locker) AcquireWithRetry(ctx context.Context, key string, ttl, budget, interval time.Duration) (*Handle, error) {
	attempts := uint(budget / interval)
	if attempts == 0 {
		attempts = 1
	}

	var h *Handle
	err := retry.Do(
		func() error {
			got, err := l.TryAcquire(ctx, key, ttl)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if got == nil {
				return ErrNotAcquired
			}
			h = got
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Release deletes the lock iff the handle's token still matches. Reports
// whether this call deleted the key.
func (l *Locker) Release(ctx context.Context, h *Handle) (bool, error) {
	if h == nil {
		return false, nil
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{h.Key}, h.Token).Int()
	if err != nil {
		return false, err
	}
	if n == 0 {
		log.Warn().Str("key", h.Key).Msg("lock token mismatch on release, key left untouched")
		return false, nil
	}
	return true, nil
}
