// Package gormstore implements the revocation list on a relational database
// through gorm. sqlite serves single-host installations; postgres serves
// installations whose sessions share a database server.
package gormstore

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// Open opens a gorm handle for the given backend ("sqlite" or "postgres") and
// migrates the revoked_certificates table.
func Open(backend, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch backend {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Newf(errors.CodeInvalidArgument, "unsupported database backend %q", backend)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to open revocation database")
	}
	if err := db.AutoMigrate(&models.RevokedCertificate{}); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to migrate revocation table")
	}
	return db, nil
}

// RevocationStore is the database-backed repository.RevocationStore. The
// serial number is the primary key, so inserts are naturally idempotent and
// concurrent revocations union rather than conflict.
type RevocationStore struct {
	db  *gorm.DB
	log logger.Logger
}

// NewRevocationStore wraps an opened, migrated gorm handle.
func NewRevocationStore(db *gorm.DB, log logger.Logger) (*RevocationStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "database handle is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RevocationStore{db: db, log: log.WithComponent("DBRevocationStore")}, nil
}

// Revoke inserts the entry, ignoring duplicates. The transaction commit makes
// the entry durable before Revoke returns.
func (s *RevocationStore) Revoke(ctx context.Context, serial, revokedBy string) error {
	entry := models.RevokedCertificate{
		SerialNumber: serial,
		RevokedBy:    revokedBy,
		RevokedAt:    s.db.NowFunc(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to insert revocation entry")
	}
	return nil
}

// IsRevoked reports membership of serial.
func (s *RevocationStore) IsRevoked(ctx context.Context, serial string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.RevokedCertificate{}).
		Where("serial_number = ?", serial).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, errors.CodeStorage, "failed to query revocation entry")
	}
	return count > 0, nil
}

// List returns all entries ordered by revocation time.
func (s *RevocationStore) List(ctx context.Context) ([]models.RevokedCertificate, error) {
	var entries []models.RevokedCertificate
	err := s.db.WithContext(ctx).
		Order("revoked_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to list revocation entries")
	}
	return entries, nil
}

// Close closes the underlying connection pool.
func (s *RevocationStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
