// Package fakes provides in-memory test doubles for the trust core's
// persistence and feed interfaces.
package fakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keyfold/keyfold/internal/domain/models"
)

// InMemoryRevocationStore is a map-backed RevocationStore for tests.
type InMemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]models.RevokedCertificate

	// Err, when set, is returned by every operation. Used to exercise
	// fail-closed paths.
	Err error
}

// NewInMemoryRevocationStore creates an empty store.
func NewInMemoryRevocationStore() *InMemoryRevocationStore {
	return &InMemoryRevocationStore{entries: make(map[string]models.RevokedCertificate)}
}

// Revoke adds serial to the set, idempotently.
func (s *InMemoryRevocationStore) Revoke(ctx context.Context, serial, revokedBy string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[serial]; ok {
		return nil
	}
	s.entries[serial] = models.RevokedCertificate{
		SerialNumber: serial,
		RevokedBy:    revokedBy,
		RevokedAt:    time.Now().UTC(),
	}
	return nil
}

// IsRevoked reports membership of serial.
func (s *InMemoryRevocationStore) IsRevoked(ctx context.Context, serial string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[serial]
	return ok, nil
}

// List returns all entries ordered by revocation time.
func (s *InMemoryRevocationStore) List(ctx context.Context) ([]models.RevokedCertificate, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RevokedCertificate, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevokedAt.Before(out[j].RevokedAt) })
	return out, nil
}

// Close is a no-op.
func (s *InMemoryRevocationStore) Close() error { return nil }
