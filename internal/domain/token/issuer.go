package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinTTL is the shortest lifetime a token can have. A zero ttl still yields
// expiresAt strictly after issuedAt.
const MinTTL = time.Millisecond

// MaxTTL is the longest lifetime a token can have. Verify rejects anything
// signed with a longer one.
const MaxTTL = 366 * 24 * time.Hour

// Request describes a token to mint.
type Request struct {
	Type    Type
	Subject string
	// OwnerID is used as the subject when Subject is empty.
	OwnerID string
	// TTL of zero means "expire immediately" and is floored to MinTTL.
	// Negative values fall back to the issuer default.
	TTL time.Duration
}

// Issued is a freshly minted token.
type Issued struct {
	Payload Payload
	Bytes   []byte
	Text    string
}

// Issuer mints signed tokens.
type Issuer struct {
	ring       *Keyring
	now        func() time.Time
	newID      func() uuid.UUID
	defaultTTL time.Duration
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithIDSource overrides eventId generation.
func WithIDSource(f func() uuid.UUID) IssuerOption {
	return func(i *Issuer) {
		if f != nil {
			i.newID = f
		}
	}
}

// WithDefaultTTL sets the lifetime used for negative request ttls.
func WithDefaultTTL(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.defaultTTL = d
		}
	}
}

// NewIssuer creates an Issuer signing with ring's current secret.
func NewIssuer(ring *Keyring, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		ring:       ring,
		now:        time.Now,
		newID:      uuid.New,
		defaultTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue mints a token for req.
func (i *Issuer) Issue(_ context.Context, req Request) (Issued, error) {
	ttl := req.TTL
	if ttl < 0 {
		ttl = i.defaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		return Issued{}, fmt.Errorf("%w: %s > %s", ErrTTLTooLong, ttl, MaxTTL)
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = strings.TrimSpace(req.OwnerID)
	}

	issuedAt := i.now().UTC().Truncate(time.Millisecond)
	p := Payload{
		Version:   Version1,
		Type:      req.Type,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl).Truncate(time.Millisecond),
		EventID:   i.newID(),
	}
	if !p.ExpiresAt.After(p.IssuedAt) {
		p.ExpiresAt = p.IssuedAt.Add(MinTTL)
	}
	b, err := Encode(p, i.ring.Current())
	if err != nil {
		return Issued{}, err
	}
	return Issued{Payload: p, Bytes: b, Text: EncodeText(b)}, nil
}
