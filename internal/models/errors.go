package models

import "errors"

// Expected business outcomes, not system failures. Callers branch on
// these with errors.Is and map them to buyer-safe responses.
var (
	ErrProjectNotFound      = errors.New("project not found or inactive")
	ErrAssignmentNotFound   = errors.New("salesperson assignment not found")
	ErrProductNotConfigured = errors.New("selected product not configured")
	ErrPaymentNotConfigured = errors.New("project payment not configured")
	ErrOutOfStock           = errors.New("product out of stock")
	ErrDuplicateVoucher     = errors.New("voucher code already exists in pool")
	ErrNoVouchersAvailable  = errors.New("no vouchers available")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrMalformedEvent       = errors.New("malformed payment event")
)
