package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewManageToken generates a cryptographically random, URL-safe opaque token
// from 32 bytes of entropy (43 characters, unpadded base64).
func NewManageToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate manage token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
