package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

const keystoreSuffix = ".keystore.json"

// KeystoreRepository stores one sealed record file per subject under a
// directory. Records arrive already sealed; files are written atomically with
// 0600 permissions.
type KeystoreRepository struct {
	dir string
	log logger.Logger
}

// NewKeystoreRepository creates the directory if needed and returns the
// repository.
func NewKeystoreRepository(dir string, log logger.Logger) (*KeystoreRepository, error) {
	if dir == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "keystore directory is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to create keystore directory")
	}
	return &KeystoreRepository{dir: dir, log: log.WithComponent("KeystoreRepository")}, nil
}

// Save stores or replaces the record for record.SubjectID.
func (r *KeystoreRepository) Save(ctx context.Context, record *models.KeyStoreRecord) error {
	if record == nil {
		return errors.New(errors.CodeInvalidArgument, "keystore record is required")
	}
	path, err := r.recordPath(record.SubjectID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to encode keystore record")
	}

	tmp, err := os.CreateTemp(r.dir, ".keystore-*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to create temp keystore file")
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to restrict keystore file permissions")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to write keystore record")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to sync keystore record")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to close keystore record")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorage, "failed to replace keystore record")
	}

	r.log.Debug(ctx, "keystore record saved", logger.String("subject_id", record.SubjectID))
	return nil
}

// Load returns the record for subjectID.
func (r *KeystoreRepository) Load(ctx context.Context, subjectID string) (*models.KeyStoreRecord, error) {
	path, err := r.recordPath(subjectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CodeStorage, "no keystore record for subject %q", subjectID)
		}
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to read keystore record")
	}
	var record models.KeyStoreRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "keystore record is corrupted")
	}
	return &record, nil
}

// Exists reports whether a record is present for subjectID.
func (r *KeystoreRepository) Exists(ctx context.Context, subjectID string) (bool, error) {
	path, err := r.recordPath(subjectID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CodeStorage, "failed to stat keystore record")
	}
	return true, nil
}

func (r *KeystoreRepository) recordPath(subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New(errors.CodeInvalidArgument, "subject id is required")
	}
	// Subject ids become file names; path metacharacters would escape the
	// keystore directory.
	if strings.ContainsAny(subjectID, "/\\") || subjectID == "." || subjectID == ".." {
		return "", errors.Newf(errors.CodeInvalidArgument, "invalid subject id %q", subjectID)
	}
	return filepath.Join(r.dir, subjectID+keystoreSuffix), nil
}
