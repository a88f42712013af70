package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any login failure so callers cannot
// distinguish an unknown email from a wrong password.
var ErrBadCredentials = errors.New("invalid credentials")

// VerifyPassword compares a plaintext password with the stored bcrypt hash.
func VerifyPassword(hash, password string) error {
	if hash == "" || password == "" {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}
