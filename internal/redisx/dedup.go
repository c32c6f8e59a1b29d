package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers gateway event ids per consuming service so replays can
// be acknowledged without reprocessing. Callers must Forget an id when
// handling fails, or the provider's retry would be swallowed.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

func (d *Dedup) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.Service, eventID)
}

// Seen records the event id and reports whether it was already known.
// Redis being unreachable counts as unseen; processing twice is safer
// than dropping the event.
func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	fresh, err := d.RDB.SetNX(ctx, d.key(eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.RDB.Del(ctx, d.key(eventID)).Err()
}
