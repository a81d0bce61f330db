package service

import (
	"errors"
	"strings"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	// Unauthorized.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrNotAuthenticated    = errors.New("not authenticated")

	// Forbidden.
	ErrAccountLocked     = errors.New("account locked")
	ErrAccountInactive   = errors.New("account inactive")
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	ErrPhoneNotConfirmed = errors.New("phone number not confirmed")

	// Conflict.
	ErrEmailAlreadyRegistered = errors.New("email already registered")

	// Validation failed.
	ErrInvalidCode  = errors.New("invalid or expired code")
	ErrInvalidEmail = errors.New("invalid email")
)

// ValidationError carries every rule a request broke, as stable message keys.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, ", ")
}
