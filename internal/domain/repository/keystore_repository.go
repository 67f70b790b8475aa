package repository

import (
	"context"

	"github.com/keyfold/keyfold/internal/domain/models"
)

// KeystoreRepository persists sealed KeyStoreRecords, one per subject. The
// repository never sees plaintext key material: records arrive already sealed.
type KeystoreRepository interface {
	// Save stores or replaces the record for record.SubjectID.
	Save(ctx context.Context, record *models.KeyStoreRecord) error

	// Load returns the record for subjectID, or a storage_failure error when
	// no record exists.
	Load(ctx context.Context, subjectID string) (*models.KeyStoreRecord, error)

	// Exists reports whether a record is present for subjectID.
	Exists(ctx context.Context, subjectID string) (bool, error)
}
