package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"voucher-service/internal/models"

	"github.com/google/uuid"
)

// CountAvailableVouchers returns the advisory available count for a project
// pool, optionally narrowed to one product. The count is not a reservation;
// the claim statement is the only source of truth under concurrency.
func (s *Store) CountAvailableVouchers(ctx context.Context, projectID, productName string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM voucher_codes
		WHERE project_id = $1 AND status = $2
		  AND ($3 = '' OR product_name = $3)`,
		projectID, models.VoucherStatusAvailable, productName)
	if err != nil {
		return 0, fmt.Errorf("count available vouchers: %w", err)
	}
	return count, nil
}

// InsertVouchers bulk-imports codes into a project pool. Codes are normalized
// to upper case; duplicates within the pool are skipped individually via
// ON CONFLICT DO NOTHING rather than failing the batch.
func (s *Store) InsertVouchers(ctx context.Context, projectID string, codes []string, productName string, expiresAt *time.Time) (imported, duplicates int, err error) {
	if len(codes) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO voucher_codes (id, project_id, code, product_name, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, code) DO NOTHING`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, code := range codes {
		normalized := strings.ToUpper(strings.TrimSpace(code))
		if normalized == "" {
			duplicates++
			continue
		}

		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), projectID, normalized, productName,
			models.VoucherStatusAvailable, expiresAt)
		if err != nil {
			return 0, 0, fmt.Errorf("insert voucher %s: %w", normalized, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if rows == 0 {
			duplicates++
		} else {
			imported++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return imported, duplicates, nil
}

// ClaimNextAvailableVoucher atomically transitions exactly one available
// voucher in the pool to sold and returns it. The selection and the mutation
// are one statement; SKIP LOCKED keeps concurrent webhook deliveries for the
// same pool from queueing on the same row or double-selling it.
// Returns models.ErrNoVouchersAvailable when the pool is exhausted, which is
// an expected business outcome and never retried here.
func (s *Store) ClaimNextAvailableVoucher(ctx context.Context, projectID, productName string) (*models.ClaimedVoucher, error) {
	const query = `
		UPDATE voucher_codes
		SET status = $1, claimed_at = NOW()
		WHERE id = (
			SELECT id FROM voucher_codes
			WHERE project_id = $2 AND status = $3
			  AND ($4 = '' OR product_name = $4)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, code`

	var claimed models.ClaimedVoucher
	err := s.db.GetContext(ctx, &claimed, query,
		models.VoucherStatusSold, projectID, models.VoucherStatusAvailable, productName)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoVouchersAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim voucher: %w", err)
	}
	return &claimed, nil
}

// GetVoucherByID retrieves a single voucher
func (s *Store) GetVoucherByID(ctx context.Context, id string) (*models.VoucherCode, error) {
	var voucher models.VoucherCode
	err := s.db.GetContext(ctx, &voucher, "SELECT * FROM voucher_codes WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("voucher not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}
