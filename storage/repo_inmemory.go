package storage

import (
	"context"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a process-local Repo. It backs session-scoped storage,
// which does not survive a restart, and is used in tests.
type InMemoryRepo struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewInMemoryRepo creates a new in-memory repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		values: make(map[string][]byte),
	}
}

// Get returns a copy of the stored value
func (r *InMemoryRepo) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value to avoid external modifications
func (r *InMemoryRepo) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes a key
func (r *InMemoryRepo) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key) // Already doesn't exist, no error
	return nil
}

// Len returns the number of stored keys
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}
