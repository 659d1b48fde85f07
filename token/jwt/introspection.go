package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/turfbook/turf-client/token/keys"
)

// TokenIntrospection describes an access token. If Active is false the other
// fields may not be populated.
type TokenIntrospection struct {
	Active bool   `json:"active"`          // True or false - Is the token valid
	Sub    string `json:"sub,omitempty"`   // Users unique ID
	Email  string `json:"email,omitempty"` // Users email
	Role   string `json:"role,omitempty"`  // Role assigned to the User
	Iss    string `json:"iss,omitempty"`   // Issuer of the token
	Iat    int64  `json:"iat,omitempty"`   // Issued at time
	Exp    int64  `json:"exp,omitempty"`   // Expiration
	Jti    string `json:"jti,omitempty"`   // Token ID
}

// RevokedChecker is an interface for checking if a token has been revoked
type RevokedChecker interface {
	IsRevoked(jti string) bool
}

// Inspector handles JWT token introspection and validation
type Inspector struct {
	signer         keys.Signer
	revokedChecker RevokedChecker
}

// NewInspector creates a new JWT inspector
func NewInspector(signer keys.Signer, revokedChecker RevokedChecker) *Inspector {
	return &Inspector{
		signer:         signer,
		revokedChecker: revokedChecker,
	}
}

// Introspect validates and extracts information from a JWT token. Expired and
// revoked tokens are reported inactive without an error.
func (i *Inspector) Introspect(rawToken string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}, nil
	}

	claims, err := i.parse(rawToken)
	if err != nil {
		return &TokenIntrospection{Active: false}, err
	}

	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	jti, _ := claims["jti"].(string)

	active := NowTimeFunc().Unix() <= int64(exp)

	// Check if token has been revoked
	if jti != "" && i.revokedChecker != nil && i.revokedChecker.IsRevoked(jti) {
		active = false
	}

	return &TokenIntrospection{
		Active: active,
		Sub:    sub,
		Email:  email,
		Role:   role,
		Iss:    iss,
		Iat:    int64(iat),
		Exp:    int64(exp),
		Jti:    jti,
	}, nil
}

// ParseAndExtractJTI returns the token ID and expiry of a correctly signed token
func (i *Inspector) ParseAndExtractJTI(rawToken string) (jti string, exp time.Time, err error) {
	claims, err := i.parse(rawToken)
	if err != nil {
		return "", time.Time{}, err
	}

	jtiClaim, ok := claims["jti"].(string)
	if !ok || jtiClaim == "" {
		return "", time.Time{}, errors.New("token missing jti claim")
	}

	expClaim, ok := claims["exp"].(float64)
	if !ok {
		return "", time.Time{}, errors.New("token missing exp claim")
	}

	return jtiClaim, time.Unix(int64(expClaim), 0), nil
}

// parse verifies the signature only; expiry is judged against NowTimeFunc by the caller
func (i *Inspector) parse(rawToken string) (jwtlib.MapClaims, error) {
	token, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwtlib.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims from token")
	}
	return claims, nil
}
