package service

import (
	"context"
	"encoding/json"
	"time"

	"voucher-service/internal/models"
	"voucher-service/internal/util"

	"go.uber.org/zap"
)

// VoucherInventory wraps the voucher store with the advisory availability
// cache, metrics and audit bookkeeping. The atomic claim itself lives in the
// store; nothing here adds retries or application-level locking.
type VoucherInventory struct {
	vouchers VoucherStore
	audit    AuditStore
	cache    AvailabilityCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewVoucherInventory creates a new inventory service
func NewVoucherInventory(vouchers VoucherStore, audit AuditStore, cache AvailabilityCache, cacheTTL time.Duration) *VoucherInventory {
	return &VoucherInventory{
		vouchers: vouchers,
		audit:    audit,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// CountAvailable returns the advisory available count for a pool. A short-TTL
// cached snapshot is served when present; the count never reserves anything
// and is always re-verified by the claim statement.
func (vi *VoucherInventory) CountAvailable(ctx context.Context, projectID, productName string) (int, error) {
	ctx, span := util.StartSpan(ctx, "VoucherInventory.CountAvailable")
	defer span.End()

	if vi.cache != nil {
		count, hit, err := vi.cache.GetCachedAvailability(ctx, projectID, productName)
		if err != nil {
			vi.logger.Warn("Availability cache read failed, falling back to DB",
				zap.String("project_id", projectID), zap.Error(err))
		} else if hit {
			return count, nil
		}
	}

	count, err := vi.vouchers.CountAvailableVouchers(ctx, projectID, productName)
	if err != nil {
		return 0, err
	}

	if vi.cache != nil {
		if err := vi.cache.SetCachedAvailability(ctx, projectID, productName, count, vi.cacheTTL); err != nil {
			vi.logger.Warn("Availability cache write failed",
				zap.String("project_id", projectID), zap.Error(err))
		}
	}

	return count, nil
}

// ImportVouchers bulk-imports codes into a pool. Duplicates are skipped
// per code; the import is audited and the availability cache invalidated.
func (vi *VoucherInventory) ImportVouchers(ctx context.Context, actorID, projectID string, codes []string, productName string, expiresAt *time.Time) (imported, duplicates int, err error) {
	ctx, span := util.StartSpan(ctx, "VoucherInventory.ImportVouchers")
	defer span.End()

	imported, duplicates, err = vi.vouchers.InsertVouchers(ctx, projectID, codes, productName, expiresAt)
	if err != nil {
		return 0, 0, err
	}

	util.VouchersImportedTotal.Add(float64(imported))
	vi.invalidateCache(ctx, projectID)

	vi.writeAudit(ctx, actorID, models.AuditActionVoucherImport, map[string]interface{}{
		"project_id":   projectID,
		"product_name": productName,
		"total_codes":  len(codes),
		"imported":     imported,
		"duplicates":   duplicates,
	})

	vi.logger.Info("Vouchers imported",
		zap.String("project_id", projectID),
		zap.Int("imported", imported),
		zap.Int("duplicates", duplicates))
	return imported, duplicates, nil
}

// AddVoucher adds a single code to a pool, the operator-facing counterpart of
// bulk import. A code already present in the pool is a conflict, not a skip.
func (vi *VoucherInventory) AddVoucher(ctx context.Context, actorID, projectID, code, productName string, expiresAt *time.Time) error {
	ctx, span := util.StartSpan(ctx, "VoucherInventory.AddVoucher")
	defer span.End()

	imported, _, err := vi.vouchers.InsertVouchers(ctx, projectID, []string{code}, productName, expiresAt)
	if err != nil {
		return err
	}
	if imported == 0 {
		return models.ErrDuplicateVoucher
	}

	util.VouchersImportedTotal.Inc()
	vi.invalidateCache(ctx, projectID)

	vi.writeAudit(ctx, actorID, models.AuditActionVoucherManualAdd, map[string]interface{}{
		"project_id":   projectID,
		"product_name": productName,
	})

	vi.logger.Info("Voucher added",
		zap.String("project_id", projectID),
		zap.String("actor_id", actorID))
	return nil
}

// GetVoucher looks up a single voucher, claimed or not. Used when fulfillment
// resumes with a voucher a prior delivery already attached.
func (vi *VoucherInventory) GetVoucher(ctx context.Context, id string) (*models.VoucherCode, error) {
	return vi.vouchers.GetVoucherByID(ctx, id)
}

// Claim atomically claims the next available voucher in the pool.
// models.ErrNoVouchersAvailable is a deterministic business outcome: the
// pool is exhausted and retrying cannot change that, so there are no retries.
func (vi *VoucherInventory) Claim(ctx context.Context, projectID, productName string) (*models.ClaimedVoucher, error) {
	ctx, span := util.StartSpan(ctx, "VoucherInventory.Claim")
	defer span.End()

	start := time.Now()
	claimed, err := vi.vouchers.ClaimNextAvailableVoucher(ctx, projectID, productName)
	util.ClaimLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if err == models.ErrNoVouchersAvailable {
			util.ClaimsExhaustedTotal.Inc()
		}
		return nil, err
	}

	util.VouchersClaimedTotal.Inc()
	vi.invalidateCache(ctx, projectID)
	return claimed, nil
}

func (vi *VoucherInventory) invalidateCache(ctx context.Context, projectID string) {
	if vi.cache == nil {
		return
	}
	if err := vi.cache.InvalidateAvailability(ctx, projectID); err != nil {
		vi.logger.Warn("Failed to invalidate availability cache",
			zap.String("project_id", projectID), zap.Error(err))
	}
}

func (vi *VoucherInventory) writeAudit(ctx context.Context, actorID, action string, metadata map[string]interface{}) {
	if vi.audit == nil {
		return
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		vi.logger.Error("Failed to marshal audit metadata", zap.Error(err))
		return
	}
	if err := vi.audit.InsertAuditLog(ctx, &models.AuditLog{
		UserID:   actorID,
		Action:   action,
		Metadata: raw,
	}); err != nil {
		vi.logger.Error("Failed to write audit log",
			zap.String("action", action), zap.Error(err))
	}
}
