package fakes

import (
	"context"
	"sync"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/pkg/errors"
)

// InMemoryKeystoreRepository is a map-backed KeystoreRepository for tests.
type InMemoryKeystoreRepository struct {
	mu      sync.RWMutex
	records map[string]*models.KeyStoreRecord

	// Err, when set, is returned by every operation.
	Err error
}

// NewInMemoryKeystoreRepository creates an empty repository.
func NewInMemoryKeystoreRepository() *InMemoryKeystoreRepository {
	return &InMemoryKeystoreRepository{records: make(map[string]*models.KeyStoreRecord)}
}

// Save stores or replaces the record for record.SubjectID.
func (r *InMemoryKeystoreRepository) Save(ctx context.Context, record *models.KeyStoreRecord) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.SubjectID] = record
	return nil
}

// Load returns the record for subjectID.
func (r *InMemoryKeystoreRepository) Load(ctx context.Context, subjectID string) (*models.KeyStoreRecord, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[subjectID]
	if !ok {
		return nil, errors.Newf(errors.CodeStorage, "no keystore record for %q", subjectID)
	}
	return record, nil
}

// Exists reports whether a record is present for subjectID.
func (r *InMemoryKeystoreRepository) Exists(ctx context.Context, subjectID string) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[subjectID]
	return ok, nil
}
