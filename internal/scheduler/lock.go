package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only when it still holds our token, so an
// expired lease taken over by another run is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a Redis advisory lock with a lease. It serializes billing runs
// across ticks and across instances.
type Lock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewLock(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{rdb: rdb, key: key, ttl: ttl}
}

// Acquire returns true when the lock was taken. token identifies the run and
// must be passed back to Release.
func (l *Lock) Acquire(ctx context.Context, token string) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
}

func (l *Lock) Release(ctx context.Context, token string) error {
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
}
