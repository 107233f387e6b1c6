package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is enforced on registration and staff provisioning.
	MinPasswordLength = 8
	// MaxPasswordLength is the bcrypt input limit in bytes.
	MaxPasswordLength = 72
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
)

// HashPassword returns the bcrypt hash of password. Length violations are
// reported as ErrPasswordTooShort or ErrPasswordTooLong.
func HashPassword(password string) (string, error) {
	switch {
	case len(password) < MinPasswordLength:
		return "", ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
