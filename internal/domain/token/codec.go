package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version1 is the only envelope version minted today.
const Version1 uint8 = 1

// MaxSubjectLen bounds the subject so a token still fits a small QR code.
const MaxSubjectLen = 256

const (
	tagSize    = sha256.Size
	headerSize = 1 + 1 + 8 + 8 + 16 + 2
	minSize    = headerSize + tagSize
)

var transport = base64.RawURLEncoding

// Encode serializes p and appends a tag computed with secret.
func Encode(p Payload, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	body, err := marshal(p)
	if err != nil {
		return nil, err
	}
	return append(body, sign(body, secret)...), nil
}

// Decode parses b without checking its tag. It is meant for inspection and
// diagnostics; anything that grants a claim must go through Verify.
func Decode(b []byte) (Payload, error) {
	if len(b) < minSize {
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(b))
	}
	return unmarshal(b[:len(b)-tagSize])
}

// Verify authenticates b against every key in ring, then parses it and checks
// expiry at now. A buffer too short to hold a header and tag is
// ErrInvalidPayload. Otherwise the tag is checked first, so flipping any signed
// byte is ErrInvalidSignature. Field errors in an authentic body are
// ErrInvalidPayload and a stale token is ErrExpired.
func Verify(b []byte, ring *Keyring, now time.Time) (Payload, error) {
	if len(b) < minSize {
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(b))
	}
	body, tag := b[:len(b)-tagSize], b[len(b)-tagSize:]
	if !ring.verify(body, tag) {
		return Payload{}, ErrInvalidSignature
	}
	p, err := unmarshal(body)
	if err != nil {
		return Payload{}, err
	}
	if p.Expired(now) {
		return p, fmt.Errorf("%w: at %s", ErrExpired, p.ExpiresAt.UTC().Format(time.RFC3339Nano))
	}
	return p, nil
}

// EncodeText renders token bytes for QR codes and URLs.
func EncodeText(b []byte) string {
	return transport.EncodeToString(b)
}

// DecodeText parses the text form. Bad alphabet or padding is a payload error.
func DecodeText(s string) ([]byte, error) {
	b, err := transport.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return b, nil
}

func sign(body, secret []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return m.Sum(nil)
}

func marshal(p Payload) ([]byte, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(p.Type))
	}
	if len(p.Subject) > MaxSubjectLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrSubjectTooLong, len(p.Subject))
	}
	issued, expires := p.IssuedAt.UnixMilli(), p.ExpiresAt.UnixMilli()
	if expires <= issued {
		return nil, ErrInvalidLifetime
	}
	if expires-issued > MaxTTL.Milliseconds() {
		return nil, fmt.Errorf("%w: %s", ErrTTLTooLong, p.ExpiresAt.Sub(p.IssuedAt))
	}
	version := p.Version
	if version == 0 {
		version = Version1
	}

	buf := make([]byte, headerSize, headerSize+len(p.Subject)+tagSize)
	buf[0] = version
	buf[1] = byte(p.Type)
	binary.BigEndian.PutUint64(buf[2:10], uint64(issued))
	binary.BigEndian.PutUint64(buf[10:18], uint64(expires))
	copy(buf[18:34], p.EventID[:])
	binary.BigEndian.PutUint16(buf[34:36], uint16(len(p.Subject)))
	return append(buf, p.Subject...), nil
}

func unmarshal(body []byte) (Payload, error) {
	if len(body) < headerSize {
		return Payload{}, fmt.Errorf("%w: short header", ErrInvalidPayload)
	}
	if body[0] != Version1 {
		return Payload{}, fmt.Errorf("%w: version %d", ErrInvalidPayload, body[0])
	}
	typ := Type(body[1])
	if !typ.Valid() {
		return Payload{}, fmt.Errorf("%w: type %d", ErrInvalidPayload, body[1])
	}
	issued := int64(binary.BigEndian.Uint64(body[2:10]))
	expires := int64(binary.BigEndian.Uint64(body[10:18]))
	if expires <= issued {
		return Payload{}, fmt.Errorf("%w: expiresAt not after issuedAt", ErrInvalidPayload)
	}
	if expires-issued > MaxTTL.Milliseconds() {
		return Payload{}, fmt.Errorf("%w: lifetime exceeds %s", ErrInvalidPayload, MaxTTL)
	}
	var id uuid.UUID
	copy(id[:], body[18:34])
	if id == uuid.Nil {
		return Payload{}, fmt.Errorf("%w: nil eventId", ErrInvalidPayload)
	}
	n := int(binary.BigEndian.Uint16(body[34:36]))
	if n > MaxSubjectLen || len(body) != headerSize+n {
		return Payload{}, fmt.Errorf("%w: subject length %d, have %d bytes", ErrInvalidPayload, n, len(body)-headerSize)
	}
	return Payload{
		Version:   Version1,
		Type:      typ,
		Subject:   string(body[headerSize:]),
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		EventID:   id,
	}, nil
}
