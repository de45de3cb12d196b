package token_test

import (
	"crypto/hmac"
	"crypto/sha256"
)

func resign(body []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return append(body, m.Sum(nil)...)
}
