package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voucher-service/internal/gateway"
	"voucher-service/internal/mailer"
	"voucher-service/internal/models"
	"voucher-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Minimal fakes satisfying the service contracts; the service-level tests
// cover behavior in depth, these exercise the HTTP boundary.

type stubStores struct {
	project      *models.Project
	available    int
	duplicateAdd bool
	txns         map[string]*models.TransactionDetail
	processed    map[string]bool
}

func newStubStores() *stubStores {
	return &stubStores{
		project: &models.Project{
			ID:              "proj-1",
			Name:            "Spring Campaign",
			Slug:            "spring",
			Status:          models.ProjectStatusActive,
			Price:           5000,
			GatewayPriceRef: "price_123",
		},
		txns:      map[string]*models.TransactionDetail{},
		processed: map[string]bool{},
	}
}

func (s *stubStores) GetProjectByID(_ context.Context, id string) (*models.Project, error) {
	if id != s.project.ID {
		return nil, models.ErrProjectNotFound
	}
	return s.project, nil
}

func (s *stubStores) GetProjectBySlug(_ context.Context, slug string) (*models.Project, error) {
	if slug != s.project.Slug {
		return nil, models.ErrProjectNotFound
	}
	return s.project, nil
}

func (s *stubStores) GetActiveAssignment(_ context.Context, _, _ string) (*models.ProjectAssignment, error) {
	return &models.ProjectAssignment{Status: models.AssignmentStatusActive}, nil
}

func (s *stubStores) UpsertCustomer(_ context.Context, c *models.Customer) error {
	c.ID = "cust-1"
	return nil
}

func (s *stubStores) CountAvailableVouchers(_ context.Context, _, _ string) (int, error) {
	return s.available, nil
}

func (s *stubStores) InsertVouchers(_ context.Context, _ string, codes []string, _ string, _ *time.Time) (int, int, error) {
	if s.duplicateAdd {
		return 0, len(codes), nil
	}
	s.available += len(codes)
	return len(codes), 0, nil
}

func (s *stubStores) GetVoucherByID(_ context.Context, id string) (*models.VoucherCode, error) {
	return &models.VoucherCode{ID: id, Code: "CODE-A", Status: models.VoucherStatusSold}, nil
}

func (s *stubStores) ClaimNextAvailableVoucher(_ context.Context, _, _ string) (*models.ClaimedVoucher, error) {
	if s.available == 0 {
		return nil, models.ErrNoVouchersAvailable
	}
	s.available--
	return &models.ClaimedVoucher{ID: "v-1", Code: "CODE-A"}, nil
}

func (s *stubStores) CreateTransaction(_ context.Context, txn *models.SalesTransaction) error {
	txn.ID = "txn-1"
	s.txns[txn.ID] = &models.TransactionDetail{SalesTransaction: *txn, CustomerEmail: "b@example.com", CustomerName: "B", ProjectName: s.project.Name}
	return nil
}

func (s *stubStores) GetTransactionDetail(_ context.Context, id string) (*models.TransactionDetail, error) {
	txn, ok := s.txns[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *stubStores) GetTransactionByID(_ context.Context, id string) (*models.SalesTransaction, error) {
	txn, ok := s.txns[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return &txn.SalesTransaction, nil
}

func (s *stubStores) MarkPaymentSucceeded(_ context.Context, id string) (bool, error) {
	txn := s.txns[id]
	if txn.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	txn.PaymentStatus = models.PaymentStatusSucceeded
	return true, nil
}

func (s *stubStores) MarkPaymentFailed(_ context.Context, id string) (bool, error) {
	txn, ok := s.txns[id]
	if !ok || txn.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	txn.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

func (s *stubStores) SetClaimedVoucher(_ context.Context, id, voucherID string) (bool, error) {
	txn := s.txns[id]
	if txn.VoucherCodeID != nil {
		return false, nil
	}
	txn.VoucherCodeID = &voucherID
	return true, nil
}

func (s *stubStores) SetFulfillmentStatus(_ context.Context, id, status string) (bool, error) {
	txn := s.txns[id]
	if txn.FulfillmentStatus != models.FulfillmentStatusPending {
		return false, nil
	}
	txn.FulfillmentStatus = status
	return true, nil
}

func (s *stubStores) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return s.processed[eventID], nil
}

func (s *stubStores) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	s.processed[eventID] = true
	return nil
}

func (s *stubStores) InsertAuditLog(_ context.Context, _ *models.AuditLog) error { return nil }

type stubGateway struct{}

func (stubGateway) CreateCheckoutSession(_ context.Context, _, _ string, _ gateway.CheckoutMetadata, _, _ string) (string, error) {
	return "https://pay.example.com/session/abc", nil
}

type stubMailer struct{ sent int }

func (m *stubMailer) SendVoucherCode(_ context.Context, _ mailer.VoucherEmail) error {
	m.sent++
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *stubStores) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stores := newStubStores()
	inventory := service.NewVoucherInventory(stores, stores, nil, time.Second)
	checkout := service.NewCheckoutService(stores, stores, stores, inventory, stubGateway{}, "http://localhost:8080")
	fulfillment := service.NewFulfillmentService(stores, inventory, stores, nil, &stubMailer{}, nil,
		service.DeliverySettings{Timeout: time.Second, MaxAttempts: 1})

	router := gin.New()
	handler := NewHandler(checkout, fulfillment, inventory, stores)
	handler.SetupRoutes(router)
	return router, stores
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutEndpointCreatesSession(t *testing.T) {
	router, stores := newTestRouter(t)
	stores.available = 1

	rec := doJSON(t, router, http.MethodPost, "/api/v1/checkout", map[string]interface{}{
		"project_id":     "proj-1",
		"salesperson_id": "sp-1",
		"customer":       map[string]string{"email": "b@example.com", "name": "Buyer"},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "txn-1", resp["transaction_id"])
	assert.NotEmpty(t, resp["checkout_url"])
}

func TestCheckoutEndpointRejectsInvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/checkout", map[string]interface{}{
		"project_id": "proj-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutEndpointOutOfStock(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/checkout", map[string]interface{}{
		"project_id":     "proj-1",
		"salesperson_id": "sp-1",
		"customer":       map[string]string{"email": "b@example.com", "name": "Buyer"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "out of stock")
}

func TestWebhookFulfillsTransaction(t *testing.T) {
	router, stores := newTestRouter(t)
	stores.available = 1
	stores.txns["txn-1"] = &models.TransactionDetail{
		SalesTransaction: models.SalesTransaction{
			ID:                "txn-1",
			ProjectID:         "proj-1",
			PaymentStatus:     models.PaymentStatusPending,
			FulfillmentStatus: models.FulfillmentStatusPending,
		},
		CustomerEmail: "b@example.com",
		CustomerName:  "B",
		ProjectName:   "Spring Campaign",
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/payments/webhook", map[string]interface{}{
		"event_id":       "evt-1",
		"event_type":     models.EventTypePaymentSucceeded,
		"transaction_id": "txn-1",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"received":true`)
	assert.Equal(t, models.FulfillmentStatusCompleted, stores.txns["txn-1"].FulfillmentStatus)
}

func TestWebhookRejectsMissingTransactionID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/payments/webhook", map[string]interface{}{
		"event_id":   "evt-1",
		"event_type": models.EventTypePaymentSucceeded,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsUnknownTransaction(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/payments/webhook", map[string]interface{}{
		"event_id":       "evt-1",
		"event_type":     models.EventTypePaymentSucceeded,
		"transaction_id": "txn-404",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportVouchersEndpoint(t *testing.T) {
	router, stores := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/projects/proj-1/vouchers/import", map[string]interface{}{
		"actor_id": "admin-1",
		"codes":    []string{"AAA", "BBB"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, stores.available)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["imported"])
	assert.Equal(t, 0, resp["duplicates"])
}

func TestAddVoucherEndpoint(t *testing.T) {
	router, stores := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/projects/proj-1/vouchers", map[string]interface{}{
		"actor_id": "admin-1",
		"code":     "MANUAL-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, stores.available)
}

func TestAddVoucherEndpointRejectsDuplicate(t *testing.T) {
	router, stores := newTestRouter(t)
	stores.duplicateAdd = true

	rec := doJSON(t, router, http.MethodPost, "/api/v1/projects/proj-1/vouchers", map[string]interface{}{
		"actor_id": "admin-1",
		"code":     "MANUAL-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetProjectBySlugEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/projects/slug/spring", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Spring Campaign")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/projects/slug/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAvailabilityEndpoint(t *testing.T) {
	router, stores := newTestRouter(t)
	stores.available = 7

	rec := doJSON(t, router, http.MethodGet, "/api/v1/projects/proj-1/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":7`)
}

func TestGetTransactionEndpoint(t *testing.T) {
	router, stores := newTestRouter(t)
	stores.txns["txn-9"] = &models.TransactionDetail{
		SalesTransaction: models.SalesTransaction{
			ID:                "txn-9",
			PaymentStatus:     models.PaymentStatusSucceeded,
			FulfillmentStatus: models.FulfillmentStatusDegraded,
		},
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/transactions/txn-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.FulfillmentStatusDegraded)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/transactions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
