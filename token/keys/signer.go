package keys

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// minSecretBytes is the HS256 key size recommended by RFC 7518
const minSecretBytes = 32

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key a parsed token is verified with
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// SecretSigner implements Signer using a shared secret with HS256
type SecretSigner struct {
	keyID  string
	secret []byte
}

var _ Signer = (*SecretSigner)(nil)

// NewSecretSigner creates a signer for secret. Short secrets are stretched by
// repetition so development defaults still produce a full-size key.
func NewSecretSigner(keyID, secret string) (*SecretSigner, error) {
	if secret == "" {
		return nil, errors.New("[keys.NewSecretSigner] secret is required")
	}
	key := []byte(secret)
	for len(key) < minSecretBytes {
		key = append(key, secret...)
	}
	return &SecretSigner{keyID: keyID, secret: key}, nil
}

func (s *SecretSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(s.GetSigningMethod(), claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}

	signedToken, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with shared secret: %w", err)
	}
	return signedToken, nil
}

func (s *SecretSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *SecretSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
