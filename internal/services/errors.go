// internal/services/errors.go
package services

import "errors"

var (
	// Order creation
	ErrEmptyCart           = errors.New("cart is empty")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderCreationFailed = errors.New("order creation failed")

	// Version resolution
	ErrPromptNotFound     = errors.New("prompt not found")
	ErrPromptNotPublished = errors.New("prompt is not published")

	// Ledger
	// ErrDuplicatePosting means the order's entries already exist. Callers
	// treat it as success, never as a reason to retry.
	ErrDuplicatePosting = errors.New("ledger entries already posted for order")
	ErrNoSaleEntries    = errors.New("no sale entries posted for order")

	// Payouts
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrPayoutNotFound      = errors.New("payout not found")
	ErrInvalidPayoutState  = errors.New("payout is not in a valid state for this transition")
	ErrBelowMinimumPayout  = errors.New("amount is below the minimum payout")
)
