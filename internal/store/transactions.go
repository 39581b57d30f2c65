package store

import (
	"context"
	"database/sql"
	"fmt"

	"voucher-service/internal/models"

	"github.com/google/uuid"
)

// CreateTransaction inserts a pending/pending ledger row. One row per
// checkout submission; duplicates are expected and never reconciled here.
func (s *Store) CreateTransaction(ctx context.Context, txn *models.SalesTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sales_transactions
			(id, project_id, salesperson_id, customer_id, voucher_code_id, product_name,
			 amount, commission_rate, payment_status, fulfillment_status, form_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		txn.ID, txn.ProjectID, txn.SalespersonID, txn.CustomerID, txn.VoucherCodeID,
		txn.ProductName, txn.Amount, txn.CommissionRate,
		txn.PaymentStatus, txn.FulfillmentStatus, txn.FormData,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
}

// GetTransactionByID retrieves a ledger row
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.SalesTransaction, error) {
	var txn models.SalesTransaction
	err := s.db.GetContext(ctx, &txn, "SELECT * FROM sales_transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetTransactionDetail retrieves a ledger row joined with the buyer and
// project fields delivery needs
func (s *Store) GetTransactionDetail(ctx context.Context, id string) (*models.TransactionDetail, error) {
	const query = `
		SELECT t.*, c.email AS customer_email, c.name AS customer_name, p.name AS project_name
		FROM sales_transactions t
		JOIN customers c ON c.id = t.customer_id
		JOIN projects p ON p.id = t.project_id
		WHERE t.id = $1`

	var detail models.TransactionDetail
	err := s.db.GetContext(ctx, &detail, query, id)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// MarkPaymentSucceeded advances payment_status from pending to succeeded.
// The conditional WHERE keeps the status monotonic under event redelivery:
// a second delivery matches zero rows and is a no-op.
func (s *Store) MarkPaymentSucceeded(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_transactions
		SET payment_status = $1, payment_completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND payment_status = $3`,
		models.PaymentStatusSucceeded, id, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkPaymentFailed advances payment_status from pending to failed
func (s *Store) MarkPaymentFailed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_transactions
		SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = $3`,
		models.PaymentStatusFailed, id, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetClaimedVoucher attaches the claimed voucher to the transaction.
// voucher_code_id is set exactly once; a concurrent redelivery that lost
// the race matches zero rows.
func (s *Store) SetClaimedVoucher(ctx context.Context, id, voucherID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_transactions
		SET voucher_code_id = $1, updated_at = NOW()
		WHERE id = $2 AND voucher_code_id IS NULL`,
		voucherID, id)
	if err != nil {
		return false, fmt.Errorf("set claimed voucher: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetFulfillmentStatus moves fulfillment_status out of pending into the given
// state and stamps the completion time for terminal states. Terminal states
// are never left: the conditional WHERE matches only pending rows.
func (s *Store) SetFulfillmentStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_transactions
		SET fulfillment_status = $1, fulfillment_completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND fulfillment_status = $3`,
		status, id, models.FulfillmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("set fulfillment status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// IsEventProcessed checks if an external event has already been handled
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed records an external event as handled
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
