package models

import "time"

// Event types
const (
	EventTypePaymentSucceeded     = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed        = "PAYMENT_FAILED"
	EventTypeFulfillmentCompleted = "FULFILLMENT_COMPLETED"
	EventTypeFulfillmentFailed    = "FULFILLMENT_FAILED"
	EventTypeFulfillmentDegraded  = "FULFILLMENT_DEGRADED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentSucceededEvent is the verified gateway callback payload.
// TransactionID is the only field the pipeline interprets; the raw
// provider payload rides along as an opaque blob.
type PaymentSucceededEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	ProviderTxID  string `json:"provider_tx_id,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
}

// PaymentFailedEvent is emitted by the gateway when a payment is declined
type PaymentFailedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason,omitempty"`
}

// FulfillmentResultEvent is published after a transaction reaches a
// terminal fulfillment state
type FulfillmentResultEvent struct {
	BaseEvent
	TransactionID     string `json:"transaction_id"`
	ProjectID         string `json:"project_id"`
	FulfillmentStatus string `json:"fulfillment_status"`
	VoucherCodeID     string `json:"voucher_code_id,omitempty"`
}
