package orders

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusReturned       Status = "RETURNED"
	StatusRefunded       Status = "REFUNDED"
)

type ShippingStatus string

const (
	ShippingNotShipped ShippingStatus = "NOT_SHIPPED"
	ShippingShipped    ShippingStatus = "SHIPPED"
	ShippingDelivered  ShippingStatus = "DELIVERED"
)

// validNext holds the allowed status transitions.
var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:           {StatusShipped: true, StatusCancelled: true},
	StatusShipped:        {StatusDelivered: true},
	StatusDelivered:      {StatusCompleted: true, StatusReturned: true},
	StatusReturned:       {StatusRefunded: true},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
