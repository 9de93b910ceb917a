package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var ErrAdminNotConfigured = errors.New("admin credential not configured")

// AdminCredential is the bootstrap admin login read from configuration.
type AdminCredential struct {
	email    string
	password string
}

func NewAdminCredential(email, password string) AdminCredential {
	return AdminCredential{email: email, password: password}
}

// Verify compares both fields in constant time.
func (a AdminCredential) Verify(email, password string) (bool, error) {
	if a.email == "" || a.password == "" {
		return false, ErrAdminNotConfigured
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(a.email))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password))
	return emailOK&passOK == 1, nil
}
