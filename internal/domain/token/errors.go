package token

import "errors"

// Verification failures. Callers branch on these with errors.Is; each maps
// to a distinct client code and none of them is worth retrying.
var (
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("token expired")
)

// Construction errors.
var (
	ErrEmptySecret     = errors.New("empty secret")
	ErrUnknownType     = errors.New("unknown token type")
	ErrSubjectTooLong  = errors.New("subject too long")
	ErrInvalidLifetime = errors.New("expiresAt must be after issuedAt")
	ErrTTLTooLong      = errors.New("ttl exceeds maximum")
)
