package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSecret returns the hex-encoded SHA-256 of a high-entropy secret (refresh token
// or confirmation code). Only this hash is persisted.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// HashRefreshToken returns the stored form of a refresh token.
func HashRefreshToken(token string) string { return HashSecret(token) }
