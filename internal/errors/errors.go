package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Local errors
	ErrValidation = errors.New("validation failed")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrRefreshFailed      = errors.New("token refresh failed")

	// Transport errors
	ErrServer  = errors.New("server error")
	ErrTimeout = errors.New("request timed out")

	// Storage errors
	ErrNotFound = errors.New("not found")
	ErrCorrupt  = errors.New("stored data corrupt")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
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

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
