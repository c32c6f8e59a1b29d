package redisx

import "time"

const (
	// Cached order status: order_status:{order_id} -> {"status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Event dedup per consumer: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Per-user checkout lock: lock:checkout:{user_id} -> token
	KeyCheckoutLock = "lock:checkout:%s"

	// Fast-path reservation timer: resv:order:{order_id} -> "1" with TTL.
	// Expiry here is only a hint; the reservations table is authoritative.
	KeyReservationTimer = "resv:order:%s"

	// Daily order-number sequence: seq:orderno:{yyyymmdd} -> counter
	KeyOrderNoSeq = "seq:orderno:%s"

	// Cached product stock snapshot kept by the inventory monitor:
	// stock:product:{product_id} -> {"available": n, "reserved": n, ...}
	KeyProductStock = "stock:product:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLOrderNoSeq  = 48 * time.Hour
	TTLStockCache  = 10 * time.Minute
)
