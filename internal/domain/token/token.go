// Package token implements the signed, time-boxed, single-use credential
// printed on QR codes and handed out by staff.
//
// A token is a compact binary envelope:
//
//	version   u8
//	type      u8
//	issuedAt  i64 big-endian, unix milliseconds
//	expiresAt i64 big-endian, unix milliseconds
//	eventId   16 bytes (UUID)
//	subjLen   u16 big-endian
//	subject   subjLen bytes
//	tag       32 bytes HMAC-SHA256 over every preceding byte
//
// Encoding is deterministic, so two tokens with the same eventId and fields
// are byte-identical.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type scopes a token's subject.
type Type uint8

// Token types. Values are part of the wire format; never renumber.
const (
	TypeVisit Type = iota + 1
	TypePromo
	TypeTip
	TypeReferral
	TypeTable
	TypeMenu
	TypeCustom
)

var typeNames = map[Type]string{
	TypeVisit:    "visit",
	TypePromo:    "promo",
	TypeTip:      "tip",
	TypeReferral: "referral",
	TypeTable:    "table",
	TypeMenu:     "menu",
	TypeCustom:   "custom",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// UserBound reports whether the subject names a person (guest or staff)
// rather than a place or campaign.
func (t Type) UserBound() bool {
	return t == TypeVisit || t == TypeTip || t == TypeReferral
}

// ParseType resolves a type by its lowercase name.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Payload is everything a token carries except its tag.
type Payload struct {
	Version   uint8
	Type      Type
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	EventID   uuid.UUID
}

// Expired reports whether the token is no longer acceptable at now.
// A token is still valid at exactly its expiry instant.
func (p Payload) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
