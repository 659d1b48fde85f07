package auth

import "github.com/turfbook/turf-client/users"

// Backend endpoints used by the Service, relative to the client's base URL
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathVerifyOtp      = "/auth/verify-otp"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password/"
	PathLogout         = "/auth/logout"
)

// Locations the Service navigates to
const (
	RouteHome      = "/"
	RouteLogin     = "/auth/login"
	RouteVerifyOtp = "/auth/verify-otp"
)

// LoginData is the login form
type LoginData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterData is the registration form. Phone is optional.
type RegisterData struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// VerifyOtpData is the OTP form. An empty Email falls back to the pending
// verification email stored by Register.
type VerifyOtpData struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ForgotPasswordData struct {
	Email string `json:"email"`
}

// ResetPasswordData carries the token from the reset link; only Password is sent in the body
type ResetPasswordData struct {
	Token    string `json:"-"`
	Password string `json:"password"`
}

// Result describes what an operation did once it succeeded
type Result struct {
	Message  string
	Location string
	User     *users.User
}

// authPayload is the data of login, verify-otp and reset-password responses
type authPayload struct {
	User         *users.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
}

type registerPayload struct {
	Email string `json:"email"`
}
