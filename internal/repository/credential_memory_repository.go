package repository

import (
	"context"
	"sync"
)

// CredentialMemoryRepository keeps credentials in process memory. Used in tests and when
// persistence across restarts is not wanted.
type CredentialMemoryRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewCredentialMemoryRepository creates an empty in-memory credential store.
func NewCredentialMemoryRepository() *CredentialMemoryRepository {
	return &CredentialMemoryRepository{values: make(map[string]string)}
}

// Get returns the value for key; found is false when the key is absent.
func (r *CredentialMemoryRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	return value, ok, nil
}

// Put stores value under key.
func (r *CredentialMemoryRepository) Put(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (r *CredentialMemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}
