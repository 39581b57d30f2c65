package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voucher-service/internal/models"
	"voucher-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes fulfillment outcome events for downstream
// consumers (dashboards, CRM)
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishFulfillmentResult publishes a terminal fulfillment outcome
func (ep *EventPublisher) PublishFulfillmentResult(ctx context.Context, event *models.FulfillmentResultEvent) error {
	key := fmt.Sprintf("transaction-%s", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming payment events to registered callbacks
type EventHandler struct {
	onPaymentSucceeded func(context.Context, *models.PaymentSucceededEvent) error
	onPaymentFailed    func(context.Context, *models.PaymentFailedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentSucceeded registers a handler for PaymentSucceeded events
func (eh *EventHandler) OnPaymentSucceeded(handler func(context.Context, *models.PaymentSucceededEvent) error) {
	eh.onPaymentSucceeded = handler
}

// OnPaymentFailed registers a handler for PaymentFailed events
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers. Malformed payloads
// return nil after logging: redelivering them cannot help.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Warn("Dropping undecodable event", zap.Error(err))
		return nil
	}

	eh.logger.Info("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentSucceeded:
		if eh.onPaymentSucceeded != nil {
			var event models.PaymentSucceededEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentSucceeded event: %w", err)
			}
			return eh.dropMalformed(eh.onPaymentSucceeded(ctx, &event), baseEvent.EventID)
		}

	case models.EventTypePaymentFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
			}
			return eh.dropMalformed(eh.onPaymentFailed(ctx, &event), baseEvent.EventID)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

// dropMalformed commits malformed events instead of redelivering them:
// a missing or unknown transaction id never resolves itself.
func (eh *EventHandler) dropMalformed(err error, eventID string) error {
	if errors.Is(err, models.ErrMalformedEvent) {
		eh.logger.Warn("Dropping malformed payment event", zap.String("event_id", eventID))
		return nil
	}
	return err
}
