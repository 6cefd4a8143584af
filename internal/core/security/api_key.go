package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateAPIKey creates a new key and its hash.
// Returns: (realKey, hash)
func GenerateAPIKey() (string, string, error) {
	// 32 random bytes from crypto/rand
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomString := hex.EncodeToString(bytes)

	// Stripe-style prefix so keys are recognizable in logs and dashboards
	realKey := fmt.Sprintf("sp_live_%s", randomString)

	// Only the SHA256 hash ever reaches the database
	hash := sha256.Sum256([]byte(realKey))
	hashedKey := hex.EncodeToString(hash[:])

	return realKey, hashedKey, nil
}

// ValidateKey checks if the user provided key matches the hash
func ValidateKey(providedKey, storedHash string) bool {
	hash := sha256.Sum256([]byte(providedKey))
	computedHash := hex.EncodeToString(hash[:])
	return computedHash == storedHash
}
