package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turfbook/turf-client/users"
)

// Session is the client's view of who is logged in.
// IsAuthenticated is derived: it is true iff User and AccessToken are both set.
type Session struct {
	User            *users.User `json:"user"`
	AccessToken     string      `json:"accessToken,omitempty"`
	RefreshToken    string      `json:"refreshToken,omitempty"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	UpdatedAt       time.Time   `json:"updatedAt,omitempty"`

	// AccessTokenExpiry is read from the token's exp claim. Zero when the
	// access token is not a JWT or carries no expiry.
	AccessTokenExpiry time.Time `json:"-"`
}

// Empty reports whether the session holds no identity and no tokens
func (s Session) Empty() bool {
	return s.User == nil && s.AccessToken == "" && s.RefreshToken == "" && !s.IsAuthenticated
}

// AccessTokenExpired reports whether the access token is known to have expired at now
func (s Session) AccessTokenExpired(now time.Time) bool {
	return !s.AccessTokenExpiry.IsZero() && !now.Before(s.AccessTokenExpiry)
}

// normalise re-derives the computed fields from the stored ones
func (s Session) normalise() Session {
	s.IsAuthenticated = s.User != nil && s.AccessToken != ""
	s.AccessTokenExpiry = accessTokenExpiry(s.AccessToken)
	return s
}

// clone deep copies the user so callers never share the stored pointer
func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// accessTokenExpiry parses the token without verifying its signature.
// The client cannot verify backend signatures; the value is informational only.
func accessTokenExpiry(rawToken string) time.Time {
	if rawToken == "" {
		return time.Time{}
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
