package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kitchen-display/internal/models"
	"kitchen-display/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing kitchen events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderStatusUpdated tells peer displays an order changed
func (ep *EventPublisher) PublishOrderStatusUpdated(ctx context.Context, orderID int64, orderNumber string) error {
	event := models.OrderEvent{
		EventID:     uuid.New().String(),
		Type:        models.EventTypeOrderStatusUpdated,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Timestamp:   time.Now(),
	}
	key := fmt.Sprintf("order-%d", orderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming push events
type EventHandler struct {
	onOrderEvent func(context.Context, models.OrderEvent) error
	logger       *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderEvent registers the handler for order-created, order-status-updated
// and order-cancelled events
func (eh *EventHandler) OnOrderEvent(handler func(context.Context, models.OrderEvent) error) {
	eh.onOrderEvent = handler
}

// HandleMessage routes a Kafka message
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return eh.HandlePayload(ctx, msg.Value)
}

// HandlePayload decodes a raw event and dispatches it
func (eh *EventHandler) HandlePayload(ctx context.Context, payload []byte) error {
	var event models.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal order event: %w", err)
	}

	if !models.IsKnownEventType(event.Type) {
		eh.logger.Debug("Unhandled event type", zap.String("type", event.Type))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", event.Type),
		zap.String("event_id", event.EventID),
		zap.Int64("order_id", event.OrderID))

	if eh.onOrderEvent == nil {
		return nil
	}
	return eh.onOrderEvent(ctx, event)
}
