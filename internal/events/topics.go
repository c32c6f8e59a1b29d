package events

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicPaymentFailed  = "order.payment.failed"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderShipped   = "order.shipped"
	TopicOrderCompleted = "order.completed"
	TopicOrderRefunded  = "order.refunded"
)

// OrderTopics lists every lifecycle topic, in the order events usually flow.
func OrderTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicPaymentFailed,
		TopicOrderCancelled,
		TopicOrderShipped,
		TopicOrderCompleted,
		TopicOrderRefunded,
	}
}

// Partition key = order_id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
