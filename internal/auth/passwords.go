package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt truncates anything past 72 bytes; reject instead of truncating.
const maxPasswordLen = 72

func HashPassword(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordLen {
		return "", fmt.Errorf("password must be %d bytes or fewer", maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash. The
// comparison is constant-time inside bcrypt; plaintexts are never compared
// directly.
func VerifyPassword(hash, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("compare password hash: %w", err)
	}
	return true, nil
}
