package errors

import (
	"errors"
	"fmt"
)

// Common error types for the OIDC session client
var (
	// Token errors
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshRejected     = errors.New("refresh rejected by provider")

	// Login flow errors
	ErrLoginCancelled = errors.New("login cancelled")
	ErrStateMismatch  = errors.New("authorization state mismatch")
	ErrNonceMismatch  = errors.New("identity token nonce mismatch")

	// Storage errors
	ErrBlobCorrupt   = errors.New("credential blob corrupt")
	ErrDecryptFailed = errors.New("credential blob decryption failed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
