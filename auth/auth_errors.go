package auth

import (
	"fmt"
	"strings"

	interrors "github.com/turfbook/turf-client/internal/errors"
)

// Fallback messages shown when the backend supplies none
const (
	LoginFailedMsg          = "Login failed"
	RegistrationFailedMsg   = "Registration failed"
	OtpFailedMsg            = "OTP verification failed"
	ForgotPasswordFailedMsg = "Failed to send reset email"
	ResetPasswordFailedMsg  = "Password reset failed"

	LoginSuccessMsg          = "Login successful"
	RegistrationSuccessMsg   = "Registration successful. Please verify your email"
	OtpSuccessMsg            = "Email verified successfully"
	ForgotPasswordSuccessMsg = "Password reset link sent to your email"
	ResetPasswordSuccessMsg  = "Password reset successful"
	LogoutSuccessMsg         = "Logged out successfully"
)

// ValidationError is a problem with one form field. It is raised locally and
// never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return interrors.ErrValidation
}

// ValidationErrors collects every invalid field of a form
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	return strings.Join(messages, "; ")
}

func (errs ValidationErrors) Unwrap() error {
	return interrors.ErrValidation
}

// Field returns the message for field, or "" when it is valid
func (errs ValidationErrors) Field(field string) string {
	for _, e := range errs {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

func (errs *ValidationErrors) add(field, message string) {
	*errs = append(*errs, &ValidationError{Field: field, Message: message})
}

func (errs ValidationErrors) err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Failure is returned by an operation that reached the backend or storage and
// failed. Message is what the user was shown.
type Failure struct {
	Op      string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("[Service.%s] %s: %v", f.Op, f.Message, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
