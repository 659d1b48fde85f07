package config

import "time"

const (
	tokenSecretVar         = "TURF_TOKEN_SECRET"
	accessTokenExpiryVar   = "TURF_ACCESS_TOKEN_EXPIRY"
	refreshTokenExpiryVar  = "TURF_REFRESH_TOKEN_EXPIRY"
	passwordResetExpiryVar = "TURF_PASSWORD_RESET_EXPIRY"
	otpExpiryVar           = "TURF_OTP_EXPIRY"
)

// TokenConfig configures token issuing in the development backend
type TokenConfig interface {
	GetTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetPasswordResetExpiry() time.Duration
	GetOtpLength() int
	GetOtpExpiry() time.Duration
}

type Tokens struct {
	v values
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetTokenSecret() string {
	return t.v.get(tokenSecretVar, "turf-dev-secret")
}

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	return t.v.duration(accessTokenExpiryVar, 15*time.Minute)
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	return t.v.duration(refreshTokenExpiryVar, 7*24*time.Hour)
}

func (Tokens) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (t Tokens) GetPasswordResetExpiry() time.Duration {
	return t.v.duration(passwordResetExpiryVar, 30*time.Minute)
}

func (Tokens) GetOtpLength() int {
	return 6
}

func (t Tokens) GetOtpExpiry() time.Duration {
	return t.v.duration(otpExpiryVar, 10*time.Minute)
}
