// Package secrets derives purpose-bound key material from operator secrets.
package secrets

import (
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	dErrors "medssi/pkg/domain-errors"
)

const derivedKeyBytes = 32

// DeriveKey expands master into a key dedicated to purpose with HKDF-SHA256.
// The same inputs always give the same key; different purposes give
// unrelated keys, so one operator secret can back several signers.
func DeriveKey(master, purpose string) (string, error) {
	if strings.TrimSpace(master) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "master secret cannot be empty")
	}
	if purpose == "" {
		return "", dErrors.New(dErrors.CodeValidation, "key purpose is required")
	}
	key := make([]byte, derivedKeyBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(master), nil, []byte(purpose)), key); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not derive key")
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}
