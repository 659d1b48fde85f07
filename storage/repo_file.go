package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltFileName = ".salt"
	saltLength   = 16

	// Argon2id parameters for deriving the sealing key from a passphrase
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var _ Repo = (*FileRepo)(nil)

// FileRepo stores each key as a file in a directory, the on-disk equivalent
// of browser local storage. Writes are atomic (temp file + rename).
// With a passphrase configured, values are sealed with XChaCha20-Poly1305.
type FileRepo struct {
	dir        string
	passphrase string

	mu      sync.Mutex
	sealKey []byte
}

type FileRepoOption func(*FileRepo)

// WithPassphrase seals stored values with a key derived from passphrase
func WithPassphrase(passphrase string) FileRepoOption {
	return func(r *FileRepo) {
		r.passphrase = passphrase
	}
}

// NewFileRepo creates the directory if needed and returns a FileRepo rooted there
func NewFileRepo(dir string, options ...FileRepoOption) (*FileRepo, error) {
	if dir == "" {
		return nil, errors.New("[NewFileRepo] directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[NewFileRepo] create %s: %w", dir, err)
	}

	r := &FileRepo{dir: dir}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *FileRepo) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.Get] read %s: %w", key, err)
	}

	if r.passphrase == "" {
		return data, nil
	}
	return r.open(key, data)
}

func (r *FileRepo) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	data := value
	if r.passphrase != "" {
		sealed, err := r.seal(key, value)
		if err != nil {
			return err
		}
		data = sealed
	}

	return writeFileAtomic(r.dir, r.path(key), data)
}

func (r *FileRepo) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	err := os.Remove(r.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[FileRepo.Delete] remove %s: %w", key, err)
	}
	return nil
}

func (r *FileRepo) path(key string) string {
	return filepath.Join(r.dir, key+".json")
}

// seal encrypts value, binding it to key as additional data so a blob
// cannot be moved to a different key.
func (r *FileRepo) seal(key string, value []byte) ([]byte, error) {
	sealKey, err := r.key()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.seal] cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[FileRepo.seal] nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, value, []byte(key)), nil
}

func (r *FileRepo) open(key string, data []byte) ([]byte, error) {
	sealKey, err := r.key()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.open] cipher: %w", err)
	}

	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("[FileRepo.open] %s: %w", key, ErrCorrupt)
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.open] %s: %w", key, ErrCorrupt)
	}
	return plaintext, nil
}

// key derives the sealing key once per repo. The salt is stored next to the data.
func (r *FileRepo) key() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealKey != nil {
		return r.sealKey, nil
	}

	salt, err := r.loadOrCreateSalt()
	if err != nil {
		return nil, err
	}
	r.sealKey = argon2.IDKey([]byte(r.passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	return r.sealKey, nil
}

func (r *FileRepo) loadOrCreateSalt() ([]byte, error) {
	saltPath := filepath.Join(r.dir, saltFileName)
	salt, err := os.ReadFile(saltPath)
	if err == nil && len(salt) == saltLength {
		return salt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("[FileRepo] read salt: %w", err)
	}

	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("[FileRepo] generate salt: %w", err)
	}
	if err := writeFileAtomic(r.dir, saltPath, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("[writeFileAtomic] create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[writeFileAtomic] write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("[writeFileAtomic] chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[writeFileAtomic] close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("[writeFileAtomic] rename: %w", err)
	}
	return nil
}
