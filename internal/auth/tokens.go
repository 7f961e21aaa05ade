package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/hds-conecte/conecte/internal/assert"
)

// NewOpaqueToken returns a URL-safe random token (refresh, reset, confirm)
func NewOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the storage form of an opaque token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	hashed := hex.EncodeToString(sum[:])
	assert.Length(hashed, 64)
	return hashed
}

// NewSecret returns 64 hex characters (32 bytes of randomness)
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(b)
	assert.Length(secret, 64)
	return secret, nil
}
