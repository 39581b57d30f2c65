package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Project represents a sales campaign that owns a pool of voucher codes
type Project struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Slug            string         `db:"slug" json:"slug"`
	Status          string         `db:"status" json:"status"`
	Price           int64          `db:"price" json:"price"`
	CommissionRate  float64        `db:"commission_rate" json:"commission_rate"`
	GatewayPriceRef string         `db:"gateway_price_ref" json:"gateway_price_ref,omitempty"`
	ProductsJSON    types.JSONText `db:"products" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ProductItem is one sellable variant configured on a project
type ProductItem struct {
	Name            string  `json:"name"`
	Price           int64   `json:"price"`
	CommissionRate  float64 `json:"commission_rate"`
	GatewayPriceRef string  `json:"gateway_price_ref,omitempty"`
}

// Products decodes the project's configured product list. An empty or null
// column means the project sells a single unnamed product at the project price.
func (p *Project) Products() ([]ProductItem, error) {
	if len(p.ProductsJSON) == 0 || string(p.ProductsJSON) == "null" {
		return nil, nil
	}
	var items []ProductItem
	if err := json.Unmarshal(p.ProductsJSON, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ProjectAssignment links a salesperson to a project they may sell for
type ProjectAssignment struct {
	ID            string    `db:"id" json:"id"`
	ProjectID     string    `db:"project_id" json:"project_id"`
	SalespersonID string    `db:"salesperson_id" json:"salesperson_id"`
	Status        string    `db:"status" json:"status"`
	FormURL       string    `db:"form_url" json:"form_url"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Customer is a buyer record, upserted by contact identity (email)
type Customer struct {
	ID             string         `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	Name           string         `db:"name" json:"name"`
	Phone          string         `db:"phone" json:"phone,omitempty"`
	Address        string         `db:"address" json:"address,omitempty"`
	City           string         `db:"city" json:"city,omitempty"`
	Country        string         `db:"country" json:"country,omitempty"`
	AdditionalInfo types.JSONText `db:"additional_info" json:"additional_info,omitempty"`
	Source         string         `db:"source" json:"source"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// VoucherCode is one redeemable inventory unit in a project pool
type VoucherCode struct {
	ID          string     `db:"id" json:"id"`
	ProjectID   string     `db:"project_id" json:"project_id"`
	Code        string     `db:"code" json:"code"`
	ProductName string     `db:"product_name" json:"product_name,omitempty"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ClaimedAt   *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// ClaimedVoucher is the result of a successful atomic claim
type ClaimedVoucher struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
}

// SalesTransaction is one ledger row per checkout submission.
// Payment and fulfillment status advance independently and never regress.
type SalesTransaction struct {
	ID                     string         `db:"id" json:"id"`
	ProjectID              string         `db:"project_id" json:"project_id"`
	SalespersonID          string         `db:"salesperson_id" json:"salesperson_id"`
	CustomerID             string         `db:"customer_id" json:"customer_id"`
	VoucherCodeID          *string        `db:"voucher_code_id" json:"voucher_code_id,omitempty"`
	ProductName            string         `db:"product_name" json:"product_name,omitempty"`
	Amount                 int64          `db:"amount" json:"amount"`
	CommissionRate         float64        `db:"commission_rate" json:"commission_rate"`
	PaymentStatus          string         `db:"payment_status" json:"payment_status"`
	FulfillmentStatus      string         `db:"fulfillment_status" json:"fulfillment_status"`
	FormData               types.JSONText `db:"form_data" json:"form_data,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
	PaymentCompletedAt     *time.Time     `db:"payment_completed_at" json:"payment_completed_at,omitempty"`
	FulfillmentCompletedAt *time.Time     `db:"fulfillment_completed_at" json:"fulfillment_completed_at,omitempty"`
}

// TransactionDetail joins the ledger row with the buyer and project
// fields needed for delivery
type TransactionDetail struct {
	SalesTransaction
	CustomerEmail string `db:"customer_email" json:"customer_email"`
	CustomerName  string `db:"customer_name" json:"customer_name"`
	ProjectName   string `db:"project_name" json:"project_name"`
}

// FulfillmentTerminal reports whether the fulfillment status can no longer change
func (t *SalesTransaction) FulfillmentTerminal() bool {
	switch t.FulfillmentStatus {
	case FulfillmentStatusCompleted, FulfillmentStatusFailed, FulfillmentStatusDegraded:
		return true
	}
	return false
}

// AuditLog is an append-only operator-visible trail entry
type AuditLog struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Action    string         `db:"action" json:"action"`
	Metadata  types.JSONText `db:"metadata" json:"metadata"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Project statuses
const (
	ProjectStatusDraft     = "draft"
	ProjectStatusActive    = "active"
	ProjectStatusPaused    = "paused"
	ProjectStatusCompleted = "completed"
)

// Assignment statuses
const (
	AssignmentStatusActive   = "active"
	AssignmentStatusInactive = "inactive"
)

// Voucher statuses. A voucher only moves forward: available -> sold or
// available -> expired. Reserved is a legal state for future hold flows
// but the checkout path never uses it.
const (
	VoucherStatusAvailable = "available"
	VoucherStatusReserved  = "reserved"
	VoucherStatusSold      = "sold"
	VoucherStatusExpired   = "expired"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Fulfillment statuses. Degraded means the voucher was consumed but the
// email failed: money captured, inventory gone, operator must resend.
const (
	FulfillmentStatusPending   = "pending"
	FulfillmentStatusCompleted = "completed"
	FulfillmentStatusFailed    = "failed"
	FulfillmentStatusDegraded  = "degraded"
)

// Audit actions
const (
	AuditActionVoucherSold      = "voucher_sold"
	AuditActionVoucherImport    = "voucher_import"
	AuditActionVoucherManualAdd = "voucher_manual_add"
)

// ProcessedEvent records handled external events for redelivery dedup
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
