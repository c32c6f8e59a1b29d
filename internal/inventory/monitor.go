package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/events"
	"github.com/lintangstore/go-storefront/internal/kafka"
	"github.com/lintangstore/go-storefront/internal/redisx"
)

// ProductReader is the slice of the catalog the monitor needs.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// Monitor follows order lifecycle events and keeps the redis stock snapshot
// warm, logging a warning whenever a product crosses its low-stock
// threshold. It never mutates stock itself.
type Monitor struct {
	Products    ProductReader
	Redis       *redis.Client
	Log         *zap.Logger
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler for every order
// topic the monitor follows.
func (m *Monitor) HandleOrderEvent(ctx context.Context, msg kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return err
	}

	// dedup by event id so replays and rebalances are harmless
	dkey := fmt.Sprintf(redisx.KeyDedup, m.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, m.Redis, dkey); exists {
		return nil
	}

	items, ok := itemsFromPayload(env)
	if ok {
		for _, it := range items {
			if err := m.refresh(ctx, it.ProductID); err != nil {
				m.Log.Warn("refresh stock snapshot failed",
					zap.String("product_id", it.ProductID), zap.Error(err))
			}
		}
	}

	// marked after the refresh pass; redoing a refresh on replay is fine,
	// skipping one is not
	_ = m.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func itemsFromPayload(env events.Envelope) ([]events.ItemQty, bool) {
	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafka.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return nil, false
		}
		return p.Items, true
	case events.EventOrderCancelled:
		p, err := kafka.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			return nil, false
		}
		return p.Items, true
	case events.EventOrderShipped:
		p, err := kafka.UnwrapPayload[events.OrderShippedPayload](env.Payload)
		if err != nil {
			return nil, false
		}
		return p.Items, true
	default:
		return nil, false
	}
}

type stockSnapshot struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
}

func (m *Monitor) refresh(ctx context.Context, productID string) error {
	p, err := m.Products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	snap := stockSnapshot{
		ProductID: p.ID,
		SKU:       p.SKU,
		Available: p.AvailableStock,
		Reserved:  p.ReservedStock,
		Total:     p.TotalStock,
		Status:    string(p.Status),
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyProductStock, p.ID)
	if err := m.Redis.Set(ctx, key, b, redisx.TTLStockCache).Err(); err != nil {
		return err
	}

	if p.IsLowStock() {
		m.Log.Warn("product low on stock",
			zap.String("product_id", p.ID),
			zap.String("sku", p.SKU),
			zap.Int("available", p.AvailableStock),
			zap.Int("threshold", p.LowStockThreshold))
	}
	return nil
}
