package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/turfbook/turf-client/users"
)

const (
	otpMinDigits   = 4
	otpMaxDigits   = 8
	phoneMinDigits = 7
	phoneMaxDigits = 15
	nameMaxLength  = 100
)

// Validator checks form shape before anything is dispatched
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogin only requires a password to be present; strength is the backend's concern at login
func (v *Validator) ValidateLogin(data LoginData) error {
	var errs ValidationErrors
	v.checkEmail(&errs, data.Email)
	if data.Password == "" {
		errs.add("password", "password is required")
	}
	return errs.err()
}

func (v *Validator) ValidateRegister(data RegisterData) error {
	var errs ValidationErrors

	name := strings.TrimSpace(data.Name)
	switch {
	case name == "":
		errs.add("name", "name is required")
	case len(name) > nameMaxLength:
		errs.add("name", "name is too long")
	}

	v.checkEmail(&errs, data.Email)
	v.checkPassword(&errs, data.Password)

	if data.Phone != "" {
		if err := ValidatePhone(data.Phone); err != nil {
			errs.add("phone", err.Error())
		}
	}
	return errs.err()
}

func (v *Validator) ValidateVerifyOtp(data VerifyOtpData) error {
	var errs ValidationErrors
	v.checkEmail(&errs, data.Email)
	if err := ValidateOTP(data.OTP); err != nil {
		errs.add("otp", err.Error())
	}
	return errs.err()
}

func (v *Validator) ValidateForgotPassword(data ForgotPasswordData) error {
	var errs ValidationErrors
	v.checkEmail(&errs, data.Email)
	return errs.err()
}

func (v *Validator) ValidateResetPassword(data ResetPasswordData) error {
	var errs ValidationErrors
	if strings.TrimSpace(data.Token) == "" {
		errs.add("token", "reset token is required")
	}
	v.checkPassword(&errs, data.Password)
	return errs.err()
}

func (v *Validator) checkEmail(errs *ValidationErrors, email string) {
	if err := ValidateEmail(email); err != nil {
		errs.add("email", err.Error())
	}
}

func (v *Validator) checkPassword(errs *ValidationErrors, password string) {
	if password == "" {
		errs.add("password", "password is required")
		return
	}
	if err := users.ValidatePasswordStrength(password); err != nil {
		errs.add("password", err.Error())
	}
}

// ValidateEmail accepts a bare address such as "a@b.com"
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateOTP requires 4 to 8 digits
func ValidateOTP(otp string) error {
	if otp == "" {
		return fmt.Errorf("otp is required")
	}
	if len(otp) < otpMinDigits || len(otp) > otpMaxDigits || !allDigits(otp) {
		return fmt.Errorf("otp must be 4 to 8 digits")
	}
	return nil
}

// ValidatePhone accepts 7 to 15 digits with an optional leading '+'
func ValidatePhone(phone string) error {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < phoneMinDigits || len(digits) > phoneMaxDigits || !allDigits(digits) {
		return fmt.Errorf("phone must be 7 to 15 digits")
	}
	return nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
