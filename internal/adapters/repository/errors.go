package repository

import (
	"errors"
	"fmt"

	"github.com/okian/attest/pkg/metrics"
)

// Outcome errors. These are deterministic for the same input and must not
// be retried.
var (
	ErrAlreadyUsed     = errors.New("already used")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCouponExpired   = errors.New("coupon expired")
	ErrAlreadyRedeemed = errors.New("coupon already redeemed")
)

var (
	// ErrUnavailable wraps every backend I/O failure. Callers may retry.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrNotFound is returned by lookups with no row.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument rejects empty keys and non-positive periods.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCodeSpaceExhausted means every generated coupon code clashed.
	ErrCodeSpaceExhausted = errors.New("coupon code attempts exhausted")
	// ErrPathRequired is returned when the SQLite path is missing.
	ErrPathRequired = errors.New("store path must be configured")
)

// unavailable wraps a backend failure and counts it.
func unavailable(ledger, op string, err error) error {
	metrics.RecordLedgerError(ledger, op)
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, ledger, op, err)
}
