// Package signature verifies hex HMAC-SHA256 webhook signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrMismatch = errors.New("webhook signature mismatch")

// Verify checks the hex HMAC-SHA256 of body under secret in constant time. An optional
// "sha256=" prefix is accepted. An empty secret never verifies.
func Verify(body []byte, sig, secret string) error {
	if secret == "" || sig == "" {
		return ErrMismatch
	}
	got, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return ErrMismatch
	}
	if !hmac.Equal(got, mac(body, secret)) {
		return ErrMismatch
	}
	return nil
}

// Sign returns the signature Verify accepts for body.
func Sign(body []byte, secret string) string {
	return hex.EncodeToString(mac(body, secret))
}

func mac(body []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
