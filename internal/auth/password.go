package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	return hashPassword(password, bcryptCost)
}

func hashPassword(password string, cost int) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Credentials holds the single operator allowed to obtain tokens
type Credentials struct {
	Operator     string
	PasswordHash string
}

// Verify checks an operator login against the configured credentials
func (c Credentials) Verify(operator, password string) error {
	nameOK := subtle.ConstantTimeCompare([]byte(operator), []byte(c.Operator)) == 1
	// bcrypt runs even when the name is wrong
	passOK := CheckPassword(password, c.PasswordHash)
	if !nameOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
