package service

import (
	"context"
	"time"

	"voucher-service/internal/gateway"
	"voucher-service/internal/mailer"
	"voucher-service/internal/models"
)

// Narrow store contracts consumed by the services. *store.Store satisfies
// all of them; tests substitute in-memory fakes.

type ProjectStore interface {
	GetProjectByID(ctx context.Context, id string) (*models.Project, error)
	GetActiveAssignment(ctx context.Context, projectID, salespersonID string) (*models.ProjectAssignment, error)
}

type CustomerStore interface {
	UpsertCustomer(ctx context.Context, customer *models.Customer) error
}

type VoucherStore interface {
	CountAvailableVouchers(ctx context.Context, projectID, productName string) (int, error)
	InsertVouchers(ctx context.Context, projectID string, codes []string, productName string, expiresAt *time.Time) (imported, duplicates int, err error)
	ClaimNextAvailableVoucher(ctx context.Context, projectID, productName string) (*models.ClaimedVoucher, error)
	GetVoucherByID(ctx context.Context, id string) (*models.VoucherCode, error)
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn *models.SalesTransaction) error
	GetTransactionDetail(ctx context.Context, id string) (*models.TransactionDetail, error)
	MarkPaymentSucceeded(ctx context.Context, id string) (bool, error)
	MarkPaymentFailed(ctx context.Context, id string) (bool, error)
	SetClaimedVoucher(ctx context.Context, id, voucherID string) (bool, error)
	SetFulfillmentStatus(ctx context.Context, id, status string) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type AuditStore interface {
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// AvailabilityCache is the advisory count cache and event dedup fast path.
// IsEventSeen is read-only; MarkEventSeen is written only once the event's
// outcome is persisted.
type AvailabilityCache interface {
	GetCachedAvailability(ctx context.Context, projectID, productName string) (int, bool, error)
	SetCachedAvailability(ctx context.Context, projectID, productName string, count int, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, projectID string) error
	IsEventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// CheckoutGateway initiates hosted checkout sessions
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, priceRef, customerEmail string, meta gateway.CheckoutMetadata, successURL, cancelURL string) (string, error)
}

// CodeMailer delivers claimed voucher codes
type CodeMailer interface {
	SendVoucherCode(ctx context.Context, email mailer.VoucherEmail) error
}

// ResultPublisher publishes terminal fulfillment outcomes
type ResultPublisher interface {
	PublishFulfillmentResult(ctx context.Context, event *models.FulfillmentResultEvent) error
}
