package worker

import (
	"context"

	"voucher-service/internal/broker"
	"voucher-service/internal/service"
	"voucher-service/internal/util"
)

// FulfillmentWorker consumes payment events from the gateway's event stream
// and drives them through the fulfillment service. Kafka redelivery after a
// handler error is the outer retry safety net; the service's idempotency
// gates make that safe.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(
	consumer *broker.Consumer,
	fulfillment *service.FulfillmentService,
) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSucceeded(fulfillment.HandlePaymentSucceeded)
	eventHandler.OnPaymentFailed(fulfillment.HandlePaymentFailed)

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	util.GetLogger().Info("Stopping fulfillment worker")
	return w.consumer.Close()
}
