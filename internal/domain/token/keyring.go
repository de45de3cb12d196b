package token

import "crypto/hmac"

// Keyring holds the signing secret and any rotated-out secrets that are
// still accepted during verification.
type Keyring struct {
	keys [][]byte
}

// NewKeyring builds a ring that signs with current and also accepts previous.
func NewKeyring(current []byte, previous ...[]byte) (*Keyring, error) {
	if len(current) == 0 {
		return nil, ErrEmptySecret
	}
	keys := make([][]byte, 0, 1+len(previous))
	keys = append(keys, clone(current))
	for _, p := range previous {
		if len(p) == 0 {
			return nil, ErrEmptySecret
		}
		keys = append(keys, clone(p))
	}
	return &Keyring{keys: keys}, nil
}

// Current returns the signing secret.
func (k *Keyring) Current() []byte { return k.keys[0] }

// Len returns the number of accepted secrets.
func (k *Keyring) Len() int { return len(k.keys) }

// Rotate returns a new ring signing with next and keeping at most keep of the
// existing secrets for verification.
func (k *Keyring) Rotate(next []byte, keep int) (*Keyring, error) {
	if keep > len(k.keys) {
		keep = len(k.keys)
	}
	if keep < 0 {
		keep = 0
	}
	return NewKeyring(next, k.keys[:keep]...)
}

// verify tries every key. All keys are compared even after a match so the
// time taken does not reveal which secret signed the token.
func (k *Keyring) verify(body, tag []byte) bool {
	ok := false
	for _, key := range k.keys {
		if hmac.Equal(sign(body, key), tag) {
			ok = true
		}
	}
	return ok
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
