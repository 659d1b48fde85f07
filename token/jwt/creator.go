package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/turfbook/turf-client/token/keys"
	"github.com/turfbook/turf-client/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator handles access token creation
type Creator struct {
	issuer string
	expiry time.Duration
	signer keys.Signer
}

// NewCreator creates a new JWT creator
func NewCreator(issuer string, expiry time.Duration, signer keys.Signer) *Creator {
	return &Creator{
		issuer: issuer,
		expiry: expiry,
		signer: signer,
	}
}

// CreateAccessToken creates a short-lived bearer token for user
func (c *Creator) CreateAccessToken(user *users.User) (*string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":   c.issuer,                 // The issuer of the token
		"sub":   user.ID,                  // The user the token was issued to
		"email": user.Email,               // Convenience claim for logging
		"role":  string(user.Role),        // Coarse permission class
		"iat":   now.Unix(),               // Issued At: the time at which the token was issued
		"exp":   now.Add(c.expiry).Unix(), // Expiry: when the token will expire
		"jti":   uuid.New().String(),      // Unique token ID for revocation
	}

	return c.signTokenWithSigner(claims)
}

// signTokenWithSigner signs JWT claims using the configured signer
func (c *Creator) signTokenWithSigner(claims jwtlib.MapClaims) (*string, error) {
	signedToken, err := c.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return &signedToken, nil
}
