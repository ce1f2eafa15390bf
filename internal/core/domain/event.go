package domain

import "time"

const (
	EventOrderPlaced          = "order.placed"
	EventOrderStatusChanged   = "order.status_changed"
	EventPaymentStatusChanged = "payment.status_changed"
)

type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"type"`
	OrderID    string         `json:"order_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}
