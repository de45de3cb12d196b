package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrServe       = errors.New("http serve failed")
)

// Codes that only exist at the HTTP edge.
const (
	codeRateLimited = "RATE_LIMITED"
	codeNotFound    = "NOT_FOUND"
)

// WrapKind tags err with the operation and a sentinel kind so callers can
// match it with errors.Is.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns a bare kind error for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}
