package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Sequence hands out per-day monotonically increasing numbers via INCR.
// Being a single atomic counter it cannot hand the same value to two
// concurrent callers, unlike a SELECT MAX()+1 over existing rows.
type Sequence struct {
	rdb *redis.Client
}

func NewSequence(rdb *redis.Client) *Sequence {
	return &Sequence{rdb: rdb}
}

func (s *Sequence) Next(ctx context.Context, day string) (int64, error) {
	key := fmt.Sprintf(KeyOrderNoSeq, day)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", day, err)
	}
	if n == 1 {
		// first number of the day; keep the counter around long enough
		// to outlive the day plus clock skew
		_ = s.rdb.Expire(ctx, key, TTLOrderNoSeq).Err()
	}
	return n, nil
}
