package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"voucher-service/internal/mailer"
	"voucher-service/internal/models"
	"voucher-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliverySettings bound the email side effect
type DeliverySettings struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// FulfillmentService drives a paid transaction to a terminal fulfillment
// state: claim one voucher, email the code, settle the ledger. It is invoked
// once per incoming payment event, concurrently and without ordering between
// transactions; all inventory coordination lives in the claim statement.
type FulfillmentService struct {
	transactions TransactionStore
	inventory    *VoucherInventory
	audit        AuditStore
	cache        AvailabilityCache
	mailer       CodeMailer
	publisher    ResultPublisher
	delivery     DeliverySettings
	logger       *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(
	transactions TransactionStore,
	inventory *VoucherInventory,
	audit AuditStore,
	cache AvailabilityCache,
	codeMailer CodeMailer,
	publisher ResultPublisher,
	delivery DeliverySettings,
) *FulfillmentService {
	if delivery.MaxAttempts < 1 {
		delivery.MaxAttempts = 1
	}
	return &FulfillmentService{
		transactions: transactions,
		inventory:    inventory,
		audit:        audit,
		cache:        cache,
		mailer:       codeMailer,
		publisher:    publisher,
		delivery:     delivery,
		logger:       util.GetLogger(),
	}
}

// HandlePaymentSucceeded processes a verified payment-succeeded event.
//
// The gateway delivers at least once, so every step tolerates redelivery:
// the payment update is conditional, the claim is gated on "no voucher
// attached yet", and terminal fulfillment states are never left. Only a
// malformed event (no resolvable transaction) or a transient infrastructure
// error propagates; business outcomes always end in a persisted status.
func (fs *FulfillmentService) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandlePaymentSucceeded")
	defer span.End()

	if event.TransactionID == "" {
		return models.ErrMalformedEvent
	}

	if event.EventID != "" {
		// Read-only fast path. The marker is written in markProcessed, after
		// the outcome is persisted; marking up front would make a transiently
		// failed attempt look like a duplicate on redelivery.
		if fs.cache != nil {
			if seen, err := fs.cache.IsEventSeen(ctx, event.EventID); err == nil && seen {
				fs.logger.Info("Duplicate event short-circuited by cache",
					zap.String("event_id", event.EventID))
				util.FulfillmentSkippedTotal.Inc()
				return nil
			}
		}
		processed, err := fs.transactions.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return err
		}
		if processed {
			fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			util.FulfillmentSkippedTotal.Inc()
			return nil
		}
	}

	txn, err := fs.transactions.GetTransactionDetail(ctx, event.TransactionID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			// Uncorrelated event: rejecting it is final, redelivery cannot help.
			fs.logger.Warn("Payment event references unknown transaction",
				zap.String("transaction_id", event.TransactionID))
			return models.ErrMalformedEvent
		}
		return err
	}

	// The gateway is the source of truth for payment success; the update is
	// unconditional on event receipt and monotonic in the store.
	updated, err := fs.transactions.MarkPaymentSucceeded(ctx, txn.ID)
	if err != nil {
		return err
	}
	if updated {
		fs.logger.Info("Payment recorded",
			zap.String("transaction_id", txn.ID),
			zap.String("provider_tx_id", event.ProviderTxID))
	}

	// Only a terminal fulfillment status is a full no-op.
	if txn.FulfillmentTerminal() {
		fs.logger.Info("Fulfillment already settled, skip",
			zap.String("transaction_id", txn.ID),
			zap.String("fulfillment_status", txn.FulfillmentStatus))
		util.FulfillmentSkippedTotal.Inc()
		fs.markProcessed(ctx, event)
		return nil
	}

	// A voucher attached with fulfillment still pending means a prior delivery
	// claimed but never settled. Never claim a second voucher for the same
	// transaction; resume delivery with the one already attached.
	if txn.VoucherCodeID != nil {
		voucher, err := fs.inventory.GetVoucher(ctx, *txn.VoucherCodeID)
		if err != nil {
			return err
		}
		claimed := &models.ClaimedVoucher{ID: voucher.ID, Code: voucher.Code}
		fs.logger.Info("Resuming unsettled fulfillment",
			zap.String("transaction_id", txn.ID),
			zap.String("voucher_id", claimed.ID))
		if err := fs.deliver(ctx, txn, claimed); err != nil {
			return fs.settleDegraded(ctx, event, txn, claimed)
		}
		return fs.settleCompleted(ctx, event, txn, claimed)
	}

	claimed, err := fs.inventory.Claim(ctx, txn.ProjectID, txn.ProductName)
	if err != nil {
		if errors.Is(err, models.ErrNoVouchersAvailable) {
			return fs.settleFailed(ctx, event, txn)
		}
		// Transient store failure: leave the event unprocessed so the
		// gateway's redelivery retries the whole transition.
		return err
	}

	if attached, err := fs.transactions.SetClaimedVoucher(ctx, txn.ID, claimed.ID); err != nil {
		fs.logger.Error("Failed to attach claimed voucher",
			zap.String("transaction_id", txn.ID),
			zap.String("voucher_id", claimed.ID),
			zap.Error(err))
		return err
	} else if !attached {
		// A concurrent delivery won the attach race after our gate check.
		// The voucher we claimed is consumed but unattached; surface it for
		// the operator rather than double-fulfilling.
		fs.logger.Error("Claimed voucher lost attach race, needs operator review",
			zap.String("transaction_id", txn.ID),
			zap.String("voucher_id", claimed.ID))
		util.FulfillmentSkippedTotal.Inc()
		fs.markProcessed(ctx, event)
		return nil
	}

	fs.writeClaimAudit(ctx, txn, claimed)

	if err := fs.deliver(ctx, txn, claimed); err != nil {
		return fs.settleDegraded(ctx, event, txn, claimed)
	}
	return fs.settleCompleted(ctx, event, txn, claimed)
}

// HandlePaymentFailed records a declined payment. Fulfillment never starts:
// no money was captured, so the row simply keeps its pending fulfillment
// status with a failed payment status.
func (fs *FulfillmentService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandlePaymentFailed")
	defer span.End()

	if event.TransactionID == "" {
		return models.ErrMalformedEvent
	}

	updated, err := fs.transactions.MarkPaymentFailed(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if updated {
		fs.logger.Warn("Payment failed",
			zap.String("transaction_id", event.TransactionID),
			zap.String("reason", event.Reason))
	}
	if event.EventID != "" {
		if err := fs.transactions.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			fs.logger.Error("Failed to mark event processed", zap.Error(err))
		}
	}
	return nil
}

// deliver emails the claimed code with a bounded timeout per attempt and a
// small bounded retry budget. Delivery failure never rolls back the claim;
// the claim and the send are separate steps by design.
func (fs *FulfillmentService) deliver(ctx context.Context, txn *models.TransactionDetail, claimed *models.ClaimedVoucher) error {
	email := mailer.VoucherEmail{
		To:          txn.CustomerEmail,
		Name:        txn.CustomerName,
		Code:        claimed.Code,
		ProjectName: txn.ProjectName,
		ProductName: txn.ProductName,
		Amount:      txn.Amount,
	}

	var lastErr error
	for attempt := 1; attempt <= fs.delivery.MaxAttempts; attempt++ {
		util.DeliveryAttemptsTotal.Inc()
		start := time.Now()

		attemptCtx := ctx
		var cancel context.CancelFunc
		if fs.delivery.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, fs.delivery.Timeout)
		}
		err := fs.mailer.SendVoucherCode(attemptCtx, email)
		if cancel != nil {
			cancel()
		}
		util.DeliveryLatency.Observe(time.Since(start).Seconds())

		if err == nil {
			return nil
		}

		lastErr = err
		util.DeliveryFailedTotal.Inc()
		fs.logger.Warn("Voucher delivery attempt failed",
			zap.String("transaction_id", txn.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < fs.delivery.MaxAttempts && fs.delivery.Backoff > 0 {
			select {
			case <-time.After(time.Duration(attempt) * fs.delivery.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// settleFailed is terminal: money captured, nothing to deliver. Automatic
// retry cannot manufacture inventory, so the row waits for an operator.
func (fs *FulfillmentService) settleFailed(ctx context.Context, event *models.PaymentSucceededEvent, txn *models.TransactionDetail) error {
	if _, err := fs.transactions.SetFulfillmentStatus(ctx, txn.ID, models.FulfillmentStatusFailed); err != nil {
		return err
	}
	util.FulfillmentFailedTotal.Inc()
	fs.logger.Error("No vouchers available for paid transaction, operator action required",
		zap.String("transaction_id", txn.ID),
		zap.String("project_id", txn.ProjectID))

	fs.publishResult(ctx, txn, models.FulfillmentStatusFailed, "")
	fs.markProcessed(ctx, event)
	return nil
}

// settleDegraded is terminal: the voucher is consumed and the email failed.
// Distinguished from failed so an operator resends instead of re-claiming.
func (fs *FulfillmentService) settleDegraded(ctx context.Context, event *models.PaymentSucceededEvent, txn *models.TransactionDetail, claimed *models.ClaimedVoucher) error {
	if _, err := fs.transactions.SetFulfillmentStatus(ctx, txn.ID, models.FulfillmentStatusDegraded); err != nil {
		return err
	}
	util.FulfillmentDegradedTotal.Inc()
	fs.logger.Error("Voucher claimed but delivery failed, operator resend required",
		zap.String("transaction_id", txn.ID),
		zap.String("voucher_id", claimed.ID))

	fs.publishResult(ctx, txn, models.FulfillmentStatusDegraded, claimed.ID)
	fs.markProcessed(ctx, event)
	return nil
}

func (fs *FulfillmentService) settleCompleted(ctx context.Context, event *models.PaymentSucceededEvent, txn *models.TransactionDetail, claimed *models.ClaimedVoucher) error {
	if _, err := fs.transactions.SetFulfillmentStatus(ctx, txn.ID, models.FulfillmentStatusCompleted); err != nil {
		return err
	}
	util.FulfillmentCompletedTotal.Inc()
	fs.logger.Info("Transaction fulfilled",
		zap.String("transaction_id", txn.ID),
		zap.String("voucher_id", claimed.ID))

	fs.publishResult(ctx, txn, models.FulfillmentStatusCompleted, claimed.ID)
	fs.markProcessed(ctx, event)
	return nil
}

func (fs *FulfillmentService) publishResult(ctx context.Context, txn *models.TransactionDetail, status, voucherID string) {
	if fs.publisher == nil {
		return
	}
	err := fs.publisher.PublishFulfillmentResult(ctx, &models.FulfillmentResultEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: resultEventType(status),
			Timestamp: time.Now(),
		},
		TransactionID:     txn.ID,
		ProjectID:         txn.ProjectID,
		FulfillmentStatus: status,
		VoucherCodeID:     voucherID,
	})
	if err != nil {
		fs.logger.Error("Failed to publish fulfillment result",
			zap.String("transaction_id", txn.ID), zap.Error(err))
	}
}

func resultEventType(status string) string {
	switch status {
	case models.FulfillmentStatusFailed:
		return models.EventTypeFulfillmentFailed
	case models.FulfillmentStatusDegraded:
		return models.EventTypeFulfillmentDegraded
	default:
		return models.EventTypeFulfillmentCompleted
	}
}

// markProcessed records the event as handled, durably and in the cache fast
// path. Called only once the transaction's outcome is persisted.
func (fs *FulfillmentService) markProcessed(ctx context.Context, event *models.PaymentSucceededEvent) {
	if event.EventID == "" {
		return
	}
	if fs.cache != nil {
		if _, err := fs.cache.MarkEventSeen(ctx, event.EventID, 24*time.Hour); err != nil {
			fs.logger.Warn("Failed to set event dedup marker",
				zap.String("event_id", event.EventID), zap.Error(err))
		}
	}
	if err := fs.transactions.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		fs.logger.Error("Failed to mark event processed",
			zap.String("event_id", event.EventID), zap.Error(err))
	}
}

func (fs *FulfillmentService) writeClaimAudit(ctx context.Context, txn *models.TransactionDetail, claimed *models.ClaimedVoucher) {
	if fs.audit == nil {
		return
	}
	metadata, err := json.Marshal(map[string]interface{}{
		"transaction_id": txn.ID,
		"voucher_id":     claimed.ID,
		"voucher_code":   claimed.Code,
		"project_id":     txn.ProjectID,
		"project_name":   txn.ProjectName,
		"customer_id":    txn.CustomerID,
		"customer_email": txn.CustomerEmail,
		"amount":         txn.Amount,
	})
	if err != nil {
		fs.logger.Error("Failed to marshal audit metadata", zap.Error(err))
		return
	}
	if err := fs.audit.InsertAuditLog(ctx, &models.AuditLog{
		UserID:   txn.SalespersonID,
		Action:   models.AuditActionVoucherSold,
		Metadata: metadata,
	}); err != nil {
		fs.logger.Error("Failed to write claim audit log",
			zap.String("transaction_id", txn.ID), zap.Error(err))
	}
}
