package inventory

import "time"

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is the durable hold one order line puts on product stock.
// Rows are written in the same transaction as the stock decrement, so after
// a crash the sweeper can always reconstruct what needs releasing.
type Reservation struct {
	OrderID   string
	ProductID string
	Qty       int
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
