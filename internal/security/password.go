package security

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const passwordSalt = "loom-password"

// scrypt parameters: interactive-login strength
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// HashPassword derives a hex-encoded scrypt hash of the password.
func HashPassword(password string) (string, error) {
	key, err := scrypt.Key([]byte(password), []byte(passwordSalt), scryptN, scryptR, scryptP, 64)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// VerifyPassword reports whether the password matches the stored hash,
// using a constant-time comparison.
func VerifyPassword(password, hash string) bool {
	computed, err := HashPassword(password)
	if err != nil {
		return false
	}

	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	computedBytes, _ := hex.DecodeString(computed)
	if len(hashBytes) != len(computedBytes) {
		return false
	}
	return subtle.ConstantTimeCompare(hashBytes, computedBytes) == 1
}
