package models

import "time"

// Push event types emitted by the order service
const (
	EventTypeOrderCreated       = "order-created"
	EventTypeOrderStatusUpdated = "order-status-updated"
	EventTypeOrderCancelled     = "order-cancelled"
)

// IsKnownEventType reports whether t is one of the push event types.
func IsKnownEventType(t string) bool {
	switch t {
	case EventTypeOrderCreated, EventTypeOrderStatusUpdated, EventTypeOrderCancelled:
		return true
	}
	return false
}

// OrderEvent is the push payload. It only wakes the ingestion loop up;
// the fields are never merged into the snapshot.
type OrderEvent struct {
	EventID     string    `json:"event_id,omitempty"`
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Timestamp   time.Time `json:"timestamp"`
}
