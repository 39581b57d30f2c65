package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voucher-service/internal/gateway"
	"voucher-service/internal/models"
	"voucher-service/internal/util"

	"go.uber.org/zap"
)

// CheckoutService validates a form submission, records the buyer, pre-checks
// availability and hands off to the hosted payment gateway with the new
// pending transaction embedded as correlation metadata.
type CheckoutService struct {
	projects     ProjectStore
	customers    CustomerStore
	transactions TransactionStore
	inventory    *VoucherInventory
	gateway      CheckoutGateway
	baseURL      string
	logger       *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	projects ProjectStore,
	customers CustomerStore,
	transactions TransactionStore,
	inventory *VoucherInventory,
	gw CheckoutGateway,
	baseURL string,
) *CheckoutService {
	return &CheckoutService{
		projects:     projects,
		customers:    customers,
		transactions: transactions,
		inventory:    inventory,
		gateway:      gw,
		baseURL:      baseURL,
		logger:       util.GetLogger(),
	}
}

// CustomerForm is the buyer-submitted contact data
type CustomerForm struct {
	Email   string                 `json:"email" binding:"required,email"`
	Name    string                 `json:"name" binding:"required"`
	Phone   string                 `json:"phone,omitempty"`
	Address string                 `json:"address,omitempty"`
	City    string                 `json:"city,omitempty"`
	Country string                 `json:"country,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// CheckoutRequest represents one form submission
type CheckoutRequest struct {
	ProjectID     string       `json:"project_id" binding:"required"`
	SalespersonID string       `json:"salesperson_id" binding:"required"`
	ProductIndex  *int         `json:"product_index,omitempty"`
	Customer      CustomerForm `json:"customer" binding:"required"`
}

// CheckoutResponse carries the gateway redirect and the pending transaction id
type CheckoutResponse struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
}

type resolvedProduct struct {
	name           string
	price          int64
	commissionRate float64
	priceRef       string
}

// Checkout runs the pre-payment half of the pipeline. Exactly one pending
// transaction row is created per call; gateway failure leaves it pending,
// which is safe to abandon.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	project, err := s.projects.GetProjectByID(ctx, req.ProjectID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("project_not_found").Inc()
		return nil, err
	}
	if project.Status != models.ProjectStatusActive {
		util.CheckoutsFailedTotal.WithLabelValues("project_inactive").Inc()
		return nil, models.ErrProjectNotFound
	}

	if _, err := s.projects.GetActiveAssignment(ctx, req.ProjectID, req.SalespersonID); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("assignment_not_found").Inc()
		return nil, err
	}

	product, err := s.resolveProduct(project, req.ProductIndex)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("product_not_configured").Inc()
		return nil, err
	}

	customer := &models.Customer{
		Email:   req.Customer.Email,
		Name:    strings.TrimSpace(req.Customer.Name),
		Phone:   strings.TrimSpace(req.Customer.Phone),
		Address: strings.TrimSpace(req.Customer.Address),
		City:    strings.TrimSpace(req.Customer.City),
		Country: strings.TrimSpace(req.Customer.Country),
		Source:  "form_submission",
	}
	if formBlob, err := json.Marshal(req.Customer); err == nil {
		customer.AdditionalInfo = formBlob
	}
	if err := s.customers.UpsertCustomer(ctx, customer); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("customer_upsert").Inc()
		return nil, fmt.Errorf("failed to create customer record: %w", err)
	}

	// Advisory only. The claim statement re-verifies under its own atomicity;
	// this check just keeps obviously hopeless submissions away from payment.
	available, err := s.inventory.CountAvailable(ctx, req.ProjectID, product.name)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("availability_check").Inc()
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if available == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("out_of_stock").Inc()
		return nil, models.ErrOutOfStock
	}

	formData, err := json.Marshal(req.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form data: %w", err)
	}

	txn := &models.SalesTransaction{
		ProjectID:         req.ProjectID,
		SalespersonID:     req.SalespersonID,
		CustomerID:        customer.ID,
		ProductName:       product.name,
		Amount:            product.price,
		CommissionRate:    product.commissionRate,
		PaymentStatus:     models.PaymentStatusPending,
		FulfillmentStatus: models.FulfillmentStatusPending,
		FormData:          formData,
	}
	if err := s.transactions.CreateTransaction(ctx, txn); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	checkoutURL, err := s.gateway.CreateCheckoutSession(ctx, product.priceRef, customer.Email,
		gateway.CheckoutMetadata{
			TransactionID: txn.ID,
			ProjectID:     req.ProjectID,
			SalespersonID: req.SalespersonID,
		},
		s.baseURL+"/form/success?session_id={CHECKOUT_SESSION_ID}",
		s.baseURL+"/form/"+project.Slug+"?cancelled=true",
	)
	if err != nil {
		// The pending row stays behind on purpose: it is safe to retry or
		// abandon, and the ledger is append-only.
		util.CheckoutsFailedTotal.WithLabelValues("gateway_error").Inc()
		s.logger.Error("Gateway session creation failed",
			zap.String("transaction_id", txn.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentNotConfigured, err)
	}

	util.CheckoutsCreatedTotal.Inc()
	s.logger.Info("Checkout created",
		zap.String("transaction_id", txn.ID),
		zap.String("project_id", req.ProjectID))

	return &CheckoutResponse{
		TransactionID: txn.ID,
		CheckoutURL:   checkoutURL,
	}, nil
}

// resolveProduct maps the submitted product index onto the project's price
// configuration. Projects without a product list sell a single unnamed
// product at the project-level price.
func (s *CheckoutService) resolveProduct(project *models.Project, index *int) (*resolvedProduct, error) {
	products, err := project.Products()
	if err != nil {
		return nil, fmt.Errorf("decode project products: %w", err)
	}

	if len(products) == 0 {
		if project.GatewayPriceRef == "" {
			return nil, models.ErrPaymentNotConfigured
		}
		return &resolvedProduct{
			price:          project.Price,
			commissionRate: project.CommissionRate,
			priceRef:       project.GatewayPriceRef,
		}, nil
	}

	if index == nil || *index < 0 || *index >= len(products) {
		return nil, models.ErrProductNotConfigured
	}

	p := products[*index]
	if p.GatewayPriceRef == "" {
		return nil, models.ErrPaymentNotConfigured
	}
	return &resolvedProduct{
		name:           p.Name,
		price:          p.Price,
		commissionRate: p.CommissionRate,
		priceRef:       p.GatewayPriceRef,
	}, nil
}
