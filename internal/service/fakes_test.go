package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"voucher-service/internal/gateway"
	"voucher-service/internal/mailer"
	"voucher-service/internal/models"
)

// In-memory fakes. The voucher store guards its pool with a mutex so the
// concurrency tests exercise the same "exactly one winner per unit"
// contract the SQL claim statement provides.

type fakeVoucherStore struct {
	mu       sync.Mutex
	vouchers []models.VoucherCode
	claimErr error
}

func (f *fakeVoucherStore) addAvailable(projectID, productName string, codes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range codes {
		f.vouchers = append(f.vouchers, models.VoucherCode{
			ID:          "v-" + code,
			ProjectID:   projectID,
			Code:        code,
			ProductName: productName,
			Status:      models.VoucherStatusAvailable,
		})
	}
}

func (f *fakeVoucherStore) CountAvailableVouchers(_ context.Context, projectID, productName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, v := range f.vouchers {
		if v.ProjectID == projectID && v.Status == models.VoucherStatusAvailable &&
			(productName == "" || v.ProductName == productName) {
			count++
		}
	}
	return count, nil
}

func (f *fakeVoucherStore) InsertVouchers(_ context.Context, projectID string, codes []string, productName string, _ *time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	imported, duplicates := 0, 0
	for _, code := range codes {
		dup := false
		for _, v := range f.vouchers {
			if v.ProjectID == projectID && v.Code == code {
				dup = true
				break
			}
		}
		if dup {
			duplicates++
			continue
		}
		f.vouchers = append(f.vouchers, models.VoucherCode{
			ID:          "v-" + code,
			ProjectID:   projectID,
			Code:        code,
			ProductName: productName,
			Status:      models.VoucherStatusAvailable,
		})
		imported++
	}
	return imported, duplicates, nil
}

func (f *fakeVoucherStore) ClaimNextAvailableVoucher(_ context.Context, projectID, productName string) (*models.ClaimedVoucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	for i := range f.vouchers {
		v := &f.vouchers[i]
		if v.ProjectID == projectID && v.Status == models.VoucherStatusAvailable &&
			(productName == "" || v.ProductName == productName) {
			v.Status = models.VoucherStatusSold
			return &models.ClaimedVoucher{ID: v.ID, Code: v.Code}, nil
		}
	}
	return nil, models.ErrNoVouchersAvailable
}

func (f *fakeVoucherStore) GetVoucherByID(_ context.Context, id string) (*models.VoucherCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.vouchers {
		if f.vouchers[i].ID == id {
			v := f.vouchers[i]
			return &v, nil
		}
	}
	return nil, errors.New("voucher not found: " + id)
}

func (f *fakeVoucherStore) soldCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, v := range f.vouchers {
		if v.Status == models.VoucherStatusSold {
			count++
		}
	}
	return count
}

type fakeTransactionStore struct {
	mu        sync.Mutex
	txns      map[string]*models.TransactionDetail
	processed map[string]bool
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{
		txns:      make(map[string]*models.TransactionDetail),
		processed: make(map[string]bool),
	}
}

func (f *fakeTransactionStore) add(txn *models.TransactionDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns[txn.ID] = txn
}

func (f *fakeTransactionStore) get(id string) models.TransactionDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.txns[id]
}

func (f *fakeTransactionStore) CreateTransaction(_ context.Context, txn *models.SalesTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if txn.ID == "" {
		txn.ID = "txn-" + txn.CustomerID
	}
	txn.CreatedAt = time.Now()
	f.txns[txn.ID] = &models.TransactionDetail{SalesTransaction: *txn}
	return nil
}

func (f *fakeTransactionStore) GetTransactionDetail(_ context.Context, id string) (*models.TransactionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	copied := *txn
	return &copied, nil
}

func (f *fakeTransactionStore) MarkPaymentSucceeded(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok || txn.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	now := time.Now()
	txn.PaymentStatus = models.PaymentStatusSucceeded
	txn.PaymentCompletedAt = &now
	return true, nil
}

func (f *fakeTransactionStore) MarkPaymentFailed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok || txn.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	txn.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

func (f *fakeTransactionStore) SetClaimedVoucher(_ context.Context, id, voucherID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok || txn.VoucherCodeID != nil {
		return false, nil
	}
	txn.VoucherCodeID = &voucherID
	return true, nil
}

func (f *fakeTransactionStore) SetFulfillmentStatus(_ context.Context, id, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok || txn.FulfillmentStatus != models.FulfillmentStatusPending {
		return false, nil
	}
	now := time.Now()
	txn.FulfillmentStatus = status
	txn.FulfillmentCompletedAt = &now
	return true, nil
}

func (f *fakeTransactionStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[eventID], nil
}

func (f *fakeTransactionStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = true
	return nil
}

type fakeProjectStore struct {
	projects    map[string]*models.Project
	assignments map[string]bool // projectID:salespersonID
}

func (f *fakeProjectStore) GetProjectByID(_ context.Context, id string) (*models.Project, error) {
	project, ok := f.projects[id]
	if !ok {
		return nil, models.ErrProjectNotFound
	}
	return project, nil
}

func (f *fakeProjectStore) GetActiveAssignment(_ context.Context, projectID, salespersonID string) (*models.ProjectAssignment, error) {
	if !f.assignments[projectID+":"+salespersonID] {
		return nil, models.ErrAssignmentNotFound
	}
	return &models.ProjectAssignment{
		ProjectID:     projectID,
		SalespersonID: salespersonID,
		Status:        models.AssignmentStatusActive,
		FormURL:       "/form/test",
	}, nil
}

type fakeCustomerStore struct {
	upserts int
}

func (f *fakeCustomerStore) UpsertCustomer(_ context.Context, customer *models.Customer) error {
	f.upserts++
	if customer.ID == "" {
		customer.ID = "cust-" + customer.Email
	}
	return nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAuditStore) InsertAuditLog(_ context.Context, entry *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	counts map[string]int
	seen   map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{counts: make(map[string]int), seen: make(map[string]bool)}
}

func (f *fakeCache) GetCachedAvailability(_ context.Context, projectID, productName string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.counts[projectID+":"+productName]
	return count, ok, nil
}

func (f *fakeCache) SetCachedAvailability(_ context.Context, projectID, productName string, count int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[projectID+":"+productName] = count
	return nil
}

func (f *fakeCache) InvalidateAvailability(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.counts {
		if len(key) >= len(projectID) && key[:len(projectID)] == projectID {
			delete(f.counts, key)
		}
	}
	return nil
}

func (f *fakeCache) IsEventSeen(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[eventID], nil
}

func (f *fakeCache) MarkEventSeen(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

type fakeMailer struct {
	mu       sync.Mutex
	sent     []mailer.VoucherEmail
	failures int // fail this many sends before succeeding
	err      error
}

func (f *fakeMailer) SendVoucherCode(_ context.Context, email mailer.VoucherEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		if f.err != nil {
			return f.err
		}
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGateway struct {
	err      error
	sessions int
	lastMeta gateway.CheckoutMetadata
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, _, _ string, meta gateway.CheckoutMetadata, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sessions++
	f.lastMeta = meta
	return "https://pay.example.com/session/abc", nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.FulfillmentResultEvent
}

func (f *fakePublisher) PublishFulfillmentResult(_ context.Context, event *models.FulfillmentResultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}
