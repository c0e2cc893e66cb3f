package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password policy bounds. The upper bound matches bcrypt's input limit.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// ErrPasswordPolicy indicates a password outside the allowed length range.
var ErrPasswordPolicy = errors.New("password must be between 8 and 72 characters")

// ValidatePassword enforces the length policy before hashing.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrPasswordPolicy
	}
	return nil
}

// HashPassword returns a salted bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash.
// bcrypt's comparison is constant time.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
