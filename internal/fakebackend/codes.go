package fakebackend

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	interrors "github.com/turfbook/turf-client/internal/errors"
	"github.com/turfbook/turf-client/storage"
)

const resetTokenBytes = 32

// errInvalidCode covers unknown, mismatched and expired codes alike
var errInvalidCode = errors.New("invalid or expired code")

type storedCode struct {
	Email     string    `json:"email"`
	Code      string    `json:"code,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// codeStore keeps OTPs and password reset tokens in a storage.Repo
type codeStore struct {
	repo    storage.Repo
	nowFunc func() time.Time
}

func newCodeStore(repo storage.Repo) *codeStore {
	return &codeStore{repo: repo, nowFunc: time.Now}
}

// issueOTP replaces any outstanding OTP for email
func (c *codeStore) issueOTP(ctx context.Context, email string, length int, expiry time.Duration) (string, error) {
	code, err := randomDigits(length)
	if err != nil {
		return "", err
	}
	entry := storedCode{Email: normaliseEmail(email), Code: code, ExpiresAt: c.nowFunc().Add(expiry)}
	if err := c.put(ctx, otpKey(email), entry); err != nil {
		return "", err
	}
	return code, nil
}

// verifyOTP consumes the OTP for email if code matches and has not expired
func (c *codeStore) verifyOTP(ctx context.Context, email, code string) error {
	key := otpKey(email)
	entry, err := c.get(ctx, key)
	if err != nil {
		return err
	}
	if c.nowFunc().After(entry.ExpiresAt) {
		_ = c.repo.Delete(ctx, key)
		return errInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		return errInvalidCode
	}
	return c.repo.Delete(ctx, key)
}

func (c *codeStore) issueResetToken(ctx context.Context, email string, expiry time.Duration) (string, error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token := hex.EncodeToString(raw)

	entry := storedCode{Email: normaliseEmail(email), ExpiresAt: c.nowFunc().Add(expiry)}
	if err := c.put(ctx, resetKey(token), entry); err != nil {
		return "", err
	}
	return token, nil
}

// consumeResetToken returns the email the token was issued for. A token is usable once.
func (c *codeStore) consumeResetToken(ctx context.Context, token string) (string, error) {
	if len(token) != hex.EncodedLen(resetTokenBytes) {
		return "", errInvalidCode
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", errInvalidCode
	}

	key := resetKey(token)
	entry, err := c.get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := c.repo.Delete(ctx, key); err != nil {
		return "", err
	}
	if c.nowFunc().After(entry.ExpiresAt) {
		return "", errInvalidCode
	}
	return entry.Email, nil
}

func (c *codeStore) put(ctx context.Context, key string, entry storedCode) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.repo.Set(ctx, key, data)
}

func (c *codeStore) get(ctx context.Context, key string) (storedCode, error) {
	data, err := c.repo.Get(ctx, key)
	if interrors.Is(err, storage.ErrNotFound) {
		return storedCode{}, errInvalidCode
	}
	if err != nil {
		return storedCode{}, err
	}
	var entry storedCode
	if err := json.Unmarshal(data, &entry); err != nil {
		return storedCode{}, fmt.Errorf("%w: %w", interrors.ErrCorrupt, err)
	}
	return entry, nil
}

// otpKey hashes the email since storage keys cannot carry '@'
func otpKey(email string) string {
	sum := sha256.Sum256([]byte(normaliseEmail(email)))
	return "otp." + hex.EncodeToString(sum[:16])
}

func resetKey(token string) string {
	return "reset." + token
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for range n {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
