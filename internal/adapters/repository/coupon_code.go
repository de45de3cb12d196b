package repository

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/pkg/metrics"
)

// codeAlphabet drops 0/O and 1/I so codes survive being read aloud. Its 32
// symbols map exactly onto 5 random bits.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLen = 8

// NewCouponCode returns a random code formatted as XXXX-XXXX.
func NewCouponCode() (string, error) {
	var raw [codeLen]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("coupon code: %w", err)
	}
	var b strings.Builder
	b.Grow(codeLen + 1)
	for i, r := range raw {
		if i == codeLen/2 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[r&31])
	}
	return b.String(), nil
}

// NormalizeCode upper-cases a code and restores the dash if it was dropped.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) == codeLen && !strings.Contains(code, "-") {
		code = code[:codeLen/2] + "-" + code[codeLen/2:]
	}
	return code
}

// insertFunc stores c iff its code is unused and reports whether it did.
type insertFunc func(ctx context.Context, c model.Coupon) (bool, error)

// issueCoupon draws codes until insert accepts one.
func issueCoupon(ctx context.Context, o options, ownerID, prizeID string, issuedAt time.Time, validity time.Duration, insert insertFunc) (model.Coupon, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(prizeID) == "" || validity <= 0 {
		return model.Coupon{}, fmt.Errorf("%w: owner, prize and validity are required", ErrInvalidArgument)
	}
	issuedAt = issuedAt.UTC()
	for range o.codeAttempts {
		code, err := o.newCode()
		if err != nil {
			return model.Coupon{}, unavailable(LedgerCoupons, "issue", err)
		}
		c := model.Coupon{
			Code:      NormalizeCode(code),
			OwnerID:   ownerID,
			PrizeID:   prizeID,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt.Add(validity),
		}
		ok, err := insert(ctx, c)
		if err != nil {
			return model.Coupon{}, err
		}
		if ok {
			return c, nil
		}
		metrics.RecordCouponCollision()
	}
	return model.Coupon{}, fmt.Errorf("%w: after %d attempts", ErrCodeSpaceExhausted, o.codeAttempts)
}
