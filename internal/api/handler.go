package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"voucher-service/internal/models"
	"voucher-service/internal/service"
	"voucher-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LedgerStore is the read side of the ledger and catalog used by operators
// and the public form page
type LedgerStore interface {
	GetTransactionByID(ctx context.Context, id string) (*models.SalesTransaction, error)
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)
}

// Handler contains HTTP handlers
type Handler struct {
	checkout    *service.CheckoutService
	fulfillment *service.FulfillmentService
	inventory   *service.VoucherInventory
	ledger      LedgerStore
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	fulfillment *service.FulfillmentService,
	inventory *service.VoucherInventory,
	ledger LedgerStore,
) *Handler {
	return &Handler{
		checkout:    checkout,
		fulfillment: fulfillment,
		inventory:   inventory,
		ledger:      ledger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.submitCheckout)
		v1.POST("/payments/webhook", h.paymentWebhook)
		v1.POST("/projects/:id/vouchers/import", h.importVouchers)
		v1.POST("/projects/:id/vouchers", h.addVoucher)
		v1.GET("/projects/:id/availability", h.getAvailability)
		v1.GET("/projects/slug/:slug", h.getProjectBySlug)
		v1.GET("/transactions/:id", h.getTransaction)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// submitCheckout handles a buyer form submission
func (h *Handler) submitCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.writeCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// writeCheckoutError maps business outcomes to buyer-safe responses.
// Store and gateway internals never leak past this boundary.
func (h *Handler) writeCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found or inactive"})
	case errors.Is(err, models.ErrAssignmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid salesperson assignment"})
	case errors.Is(err, models.ErrProductNotConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Selected product is not available"})
	case errors.Is(err, models.ErrPaymentNotConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project payment not configured"})
	case errors.Is(err, models.ErrOutOfStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sorry, this product is currently out of stock. Please contact support."})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred. Please try again."})
	}
}

// paymentWebhook accepts a payment event whose authenticity the caller has
// already verified. The response only ever means "event received": the
// gateway's redelivery must not be coupled to fulfillment outcomes.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var event models.PaymentSucceededEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	var err error
	switch event.EventType {
	case models.EventTypePaymentFailed:
		failed := models.PaymentFailedEvent{
			BaseEvent:     event.BaseEvent,
			TransactionID: event.TransactionID,
		}
		err = h.fulfillment.HandlePaymentFailed(c.Request.Context(), &failed)
	default:
		err = h.fulfillment.HandlePaymentSucceeded(c.Request.Context(), &event)
	}

	if errors.Is(err, models.ErrMalformedEvent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or unknown transaction_id"})
		return
	}
	if err != nil {
		// Transient failure: a non-2xx response makes the gateway redeliver,
		// which the idempotency checks absorb.
		c.JSON(http.StatusInternalServerError, gin.H{"received": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

type importVouchersRequest struct {
	ActorID     string   `json:"actor_id" binding:"required"`
	Codes       []string `json:"codes" binding:"required,min=1"`
	ProductName string   `json:"product_name,omitempty"`
	ExpiresAt   string   `json:"expires_at,omitempty"`
}

// importVouchers handles bulk voucher import into a project pool
func (h *Handler) importVouchers(c *gin.Context) {
	var req importVouchersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC3339"})
			return
		}
		expiresAt = &parsed
	}

	imported, duplicates, err := h.inventory.ImportVouchers(
		c.Request.Context(), req.ActorID, c.Param("id"), req.Codes, req.ProductName, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Import failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported":   imported,
		"duplicates": duplicates,
		"total":      len(req.Codes),
	})
}

type addVoucherRequest struct {
	ActorID     string `json:"actor_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
	ProductName string `json:"product_name,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// addVoucher handles a manual single-code addition to a pool
func (h *Handler) addVoucher(c *gin.Context) {
	var req addVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC3339"})
			return
		}
		expiresAt = &parsed
	}

	err := h.inventory.AddVoucher(
		c.Request.Context(), req.ActorID, c.Param("id"), req.Code, req.ProductName, expiresAt)
	if errors.Is(err, models.ErrDuplicateVoucher) {
		c.JSON(http.StatusConflict, gin.H{"error": "Voucher code already exists in this pool"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Add failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"added": true})
}

// getProjectBySlug serves the public project data the sales form renders.
// Inactive projects are indistinguishable from missing ones.
func (h *Handler) getProjectBySlug(c *gin.Context) {
	project, err := h.ledger.GetProjectBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil || project.Status != models.ProjectStatusActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found or inactive"})
		return
	}

	products, err := project.Products()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       project.ID,
		"name":     project.Name,
		"slug":     project.Slug,
		"price":    project.Price,
		"products": products,
	})
}

// getAvailability returns the advisory available count for a pool
func (h *Handler) getAvailability(c *gin.Context) {
	count, err := h.inventory.CountAvailable(
		c.Request.Context(), c.Param("id"), c.Query("product"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Availability check failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": count})
}

// getTransaction is the operator-facing ledger lookup; failed and degraded
// fulfillment states surface here, never to buyers.
func (h *Handler) getTransaction(c *gin.Context) {
	txn, err := h.ledger.GetTransactionByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
