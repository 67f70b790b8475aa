package application

import (
	"context"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/domain/repository"
	"github.com/keyfold/keyfold/internal/infrastructure/crypto"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// IdentityService orchestrates the identity lifecycle: provisioning a new
// subject, unlocking an existing one, rotating a key pair, and retiring one
// through revocation. Passwords pass through; they are never stored or logged.
type IdentityService struct {
	keys     *crypto.KeyManager
	keystore *crypto.KeyStore
	records  repository.KeystoreRepository
	log      logger.Logger
}

// NewIdentityService wires the identity lifecycle components together.
func NewIdentityService(keys *crypto.KeyManager, keystore *crypto.KeyStore, records repository.KeystoreRepository, log logger.Logger) (*IdentityService, error) {
	if keys == nil || keystore == nil || records == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "key manager, keystore and record repository are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &IdentityService{
		keys:     keys,
		keystore: keystore,
		records:  records,
		log:      log.WithComponent("IdentityService"),
	}, nil
}

// Provision creates a fresh identity for subjectID and seals its private key
// under password. It refuses to overwrite an existing record; rotation is the
// explicit path for replacing an identity.
func (s *IdentityService) Provision(ctx context.Context, subjectID, password string) (*models.Identity, error) {
	exists, err := s.records.Exists(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Newf(errors.CodeInvalidArgument, "subject %q is already provisioned", subjectID)
	}

	identity, err := s.keys.GenerateIdentity(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.saveIdentity(ctx, subjectID, identity, password); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "subject provisioned",
		logger.String("subject_id", subjectID),
		logger.String("serial", identity.Certificate.SerialNumber),
	)
	return identity, nil
}

// Unlock loads the subject's sealed record and recovers the identity using
// password.
func (s *IdentityService) Unlock(ctx context.Context, subjectID, password string) (*models.Identity, error) {
	record, err := s.records.Load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	priv, err := s.keystore.Unlock(record, password)
	if err != nil {
		return nil, err
	}
	if len(record.CertificatePEM) == 0 {
		return nil, errors.Newf(errors.CodeStorage, "keystore record for %q has no certificate", subjectID)
	}
	cert, err := s.keys.ParseCertificate(record.CertificatePEM)
	if err != nil {
		return nil, err
	}
	return &models.Identity{Certificate: cert, PrivateKey: priv}, nil
}

// Rotate replaces the subject's identity: a new key pair and certificate are
// issued and sealed under the same password, and the previous certificate's
// serial is revoked. Unlocking first proves possession of the password before
// anything is replaced.
func (s *IdentityService) Rotate(ctx context.Context, subjectID, password string) (*models.Identity, error) {
	old, err := s.Unlock(ctx, subjectID, password)
	if err != nil {
		return nil, err
	}

	replacement, err := s.keys.GenerateIdentity(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.saveIdentity(ctx, subjectID, replacement, password); err != nil {
		return nil, err
	}
	if err := s.keys.Revoke(ctx, old.Certificate.SerialNumber, subjectID); err != nil {
		// The new identity is already in place; the old certificate must not
		// stay trusted.
		return nil, err
	}

	s.log.Info(ctx, "identity rotated",
		logger.String("subject_id", subjectID),
		logger.String("old_serial", old.Certificate.SerialNumber),
		logger.String("new_serial", replacement.Certificate.SerialNumber),
	)
	return replacement, nil
}

// Retire revokes the subject's current certificate without issuing a
// replacement. The sealed record remains so previously stored envelopes stay
// decryptable.
func (s *IdentityService) Retire(ctx context.Context, subjectID, password string) error {
	identity, err := s.Unlock(ctx, subjectID, password)
	if err != nil {
		return err
	}
	return s.keys.Revoke(ctx, identity.Certificate.SerialNumber, subjectID)
}

func (s *IdentityService) saveIdentity(ctx context.Context, subjectID string, identity *models.Identity, password string) error {
	record, err := s.keystore.Seal(identity.PrivateKey, password)
	if err != nil {
		return err
	}
	record.SubjectID = subjectID
	record.CertificatePEM = identity.Certificate.PEM()
	return s.records.Save(ctx, record)
}
