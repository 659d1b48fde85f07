package storage

import (
	"context"
	"fmt"
	"regexp"

	interrors "github.com/turfbook/turf-client/internal/errors"
)

// Storage keys used by the session client.
const (
	// KeySession holds the persisted Token Store state (durable storage)
	KeySession = "turf.session"
	// KeyPendingVerificationEmail holds the email awaiting OTP verification (session storage)
	KeyPendingVerificationEmail = "turf.pendingVerificationEmail"
)

var (
	ErrNotFound = interrors.ErrNotFound
	ErrCorrupt  = interrors.ErrCorrupt
)

// Repo is a key/value store for client state. Values are opaque bytes.
// Get on a missing key returns ErrNotFound. Delete on a missing key is not an error.
type Repo interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey rejects keys that cannot be used safely as file names or redis key suffixes
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
