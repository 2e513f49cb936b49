package orders

import (
	"encoding/json"
	"time"
)

const (
	TopicOrderPaid = "order.paid"

	EventOrderPaid = "OrderPaid"
)

// Partition key = order_id so every event of one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// OrderPaidPayload carries exactly the paid order's line items. Prices are
// irrelevant downstream and deliberately absent.
type OrderPaidPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
}
