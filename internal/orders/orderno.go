package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const orderNoPrefix = "ORD"

// Sequencer hands out the next number for a given day. The redis-backed
// implementation lives in redisx; tests use an in-memory one.
type Sequencer interface {
	Next(ctx context.Context, day string) (int64, error)
}

// NumberGenerator produces date-prefixed, sortable, human-readable order
// numbers: ORD-20260830-000042. The per-day sequence is a single atomic
// counter, so concurrent callers cannot collide the way a
// SELECT MAX()+1 generator does.
type NumberGenerator struct {
	Seq   Sequencer
	Log   *zap.Logger
	Clock func() time.Time
}

func (g *NumberGenerator) Generate(ctx context.Context) (string, error) {
	now := g.now()
	day := now.Format("20060102")

	n, err := g.Seq.Next(ctx, day)
	if err == nil {
		return fmt.Sprintf("%s-%s-%06d", orderNoPrefix, day, n), nil
	}

	// Sequencer unavailable: fall back to a timestamp suffix. Still unique
	// enough in practice, and the orders.order_no unique index backstops it.
	if g.Log != nil {
		g.Log.Warn("order number sequencer unavailable, using timestamp fallback", zap.Error(err))
	}
	return fmt.Sprintf("%s-%s-T%09d", orderNoPrefix, day, now.UnixNano()%1_000_000_000), nil
}

func (g *NumberGenerator) now() time.Time {
	if g.Clock != nil {
		return g.Clock().UTC()
	}
	return time.Now().UTC()
}
