package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is already held by someone else.
var ErrNotAcquired = errors.New("lock not acquired")

// unlockScript deletes the key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the previous holder.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a short-TTL advisory lock backed by SET NX. It fails closed:
// callers that cannot acquire it should tell the client to retry.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func AcquireLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{rdb: rdb, key: key, token: token, ttl: ttl}, nil
}

func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
