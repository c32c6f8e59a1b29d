package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckoutLocker serialises checkout attempts per user with a short-TTL
// SETNX lock. It fails closed: a held lock means "try again".
type CheckoutLocker struct {
	RDB *redis.Client
	TTL time.Duration
}

func (c *CheckoutLocker) Acquire(ctx context.Context, userID string) (func(context.Context) error, error) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	lock, err := AcquireLock(ctx, c.RDB, fmt.Sprintf(KeyCheckoutLock, userID), ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// ReservationTimer maintains the fast-path expiry hint for an order's
// stock hold. The durable expires_at column stays authoritative.
type ReservationTimer struct {
	RDB *redis.Client
}

func (t *ReservationTimer) Set(ctx context.Context, orderID string, ttl time.Duration) error {
	return t.RDB.Set(ctx, fmt.Sprintf(KeyReservationTimer, orderID), "1", ttl).Err()
}

func (t *ReservationTimer) Clear(ctx context.Context, orderID string) error {
	return t.RDB.Del(ctx, fmt.Sprintf(KeyReservationTimer, orderID)).Err()
}
