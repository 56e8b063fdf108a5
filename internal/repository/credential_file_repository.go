package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-mobile/pkg/storage"
)

var errCredentialFileCorrupt = errors.New("credential file unreadable")

// CredentialFileRepository persists the credential bundle as a single sealed file. Every
// mutation rewrites the file atomically, so each key operation is atomic on disk. A file
// that cannot be opened (rotated secret, truncation) fails reads but is discarded by writes,
// so logout and the next login always succeed.
type CredentialFileRepository struct {
	storage  *storage.LocalStorage
	sealer   *storage.Sealer
	filename string
	logger   *zap.Logger

	mu sync.Mutex
}

// NewCredentialFileRepository constructs a file backed credential store.
func NewCredentialFileRepository(store *storage.LocalStorage, sealer *storage.Sealer, filename string, logger *zap.Logger) *CredentialFileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialFileRepository{storage: store, sealer: sealer, filename: filename, logger: logger}
}

// Get returns the value for key; found is false when the key or the file is absent.
func (r *CredentialFileRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Put stores value under key.
func (r *CredentialFileRepository) Put(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.loadForWrite()
	if err != nil {
		return err
	}
	values[key] = value
	return r.save(values)
}

// Delete removes key. The file is removed once the last key is gone.
func (r *CredentialFileRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.loadForWrite()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	if len(values) == 0 {
		return r.storage.Delete(r.filename)
	}
	return r.save(values)
}

func (r *CredentialFileRepository) load() (map[string]string, error) {
	sealed, found, err := r.storage.Load(r.filename)
	if err != nil {
		return nil, fmt.Errorf("load credential file: %w", err)
	}
	values := make(map[string]string)
	if !found {
		return values, nil
	}
	raw, err := r.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open credential file: %w: %w", errCredentialFileCorrupt, err)
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode credential file: %w: %w", errCredentialFileCorrupt, err)
	}
	return values, nil
}

// loadForWrite removes an unreadable file and starts over from an empty bundle.
func (r *CredentialFileRepository) loadForWrite() (map[string]string, error) {
	values, err := r.load()
	if !errors.Is(err, errCredentialFileCorrupt) {
		return values, err
	}
	r.logger.Warn("discarding unreadable credential file", zap.String("path", r.storage.Path(r.filename)), zap.Error(err))
	if err := r.storage.Delete(r.filename); err != nil {
		return nil, err
	}
	return make(map[string]string), nil
}

func (r *CredentialFileRepository) save(values map[string]string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}
	sealed, err := r.sealer.Seal(raw)
	if err != nil {
		return fmt.Errorf("seal credential file: %w", err)
	}
	if err := r.storage.Save(r.filename, sealed); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}
