// Package internal holds challenge token generation and digest helpers
// shared by the engine and its stores.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// challengeTokenSize is the raw entropy per verification/reset token.
const challengeTokenSize = 20

// NewChallengeToken returns a fresh random token as a 40-character hex
// string. The raw value is mailed to the account holder; only its
// digest is ever persisted.
func NewChallengeToken() (string, error) {
	raw := make([]byte, challengeTokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashChallengeToken maps a raw token to the hex SHA-256 digest stored
// alongside the account.
func HashChallengeToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
