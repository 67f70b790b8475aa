// Package application orchestrates the trust core's components into the
// user-facing operations: identity provisioning and rotation, and envelope
// export/import for sharing across installations.
package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/domain/service"
	"github.com/keyfold/keyfold/pkg/constants"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// portableEnvelope is the wire form of an exported envelope. Binary fields are
// base64 in JSON; the signer certificate travels as PEM so the blob is
// self-contained: an importer needs nothing beyond its own revocation list to
// evaluate it.
type portableEnvelope struct {
	Version           int       `json:"version"`
	ExportID          string    `json:"export_id"`
	ExportedAt        time.Time `json:"exported_at"`
	Ciphertext        []byte    `json:"ciphertext"`
	IV                []byte    `json:"iv"`
	WrappedSessionKey []byte    `json:"wrapped_session_key"`
	Signature         []byte    `json:"signature"`
	SignerCertificate string    `json:"signer_certificate"`
}

// SharingService packages envelopes for export and validates imported blobs.
// It decides structure, never trust: imported envelopes go through
// CryptoManager.Verify before anyone believes them.
type SharingService struct {
	parser service.CertificateParser
	log    logger.Logger

	// certCache memoises structural certificate validation by fingerprint.
	// Only the parse + self-signature check is cached; trust is evaluated
	// fresh on every verify.
	certCache *gocache.Cache
}

// NewSharingService creates a sharing service using parser for certificate
// well-formedness checks.
func NewSharingService(parser service.CertificateParser, log logger.Logger) (*SharingService, error) {
	if parser == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "certificate parser is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &SharingService{
		parser:    parser,
		log:       log.WithComponent("SharingService"),
		certCache: gocache.New(10*time.Minute, 30*time.Minute),
	}, nil
}

// Export serializes env into a self-contained portable blob.
func (s *SharingService) Export(ctx context.Context, env *models.EncryptedEnvelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "envelope is required")
	}
	if len(env.Ciphertext) == 0 || len(env.IV) == 0 || len(env.WrappedSessionKey) == 0 ||
		len(env.Signature) == 0 || env.SignerCertificate == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "envelope is incomplete")
	}

	blob, err := json.Marshal(portableEnvelope{
		Version:           constants.EnvelopeFormatVersion,
		ExportID:          uuid.NewString(),
		ExportedAt:        time.Now().UTC(),
		Ciphertext:        env.Ciphertext,
		IV:                env.IV,
		WrappedSessionKey: env.WrappedSessionKey,
		Signature:         env.Signature,
		SignerCertificate: string(env.SignerCertificate.PEM()),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode envelope")
	}
	return blob, nil
}

// Import deserializes and structurally validates a portable blob. The
// embedded certificate must parse and carry a valid self-signature; expiry
// and revocation are deliberately left to CryptoManager.Verify, which the
// caller must run before trusting or decrypting the result.
func (s *SharingService) Import(ctx context.Context, blob []byte) (*models.EncryptedEnvelope, error) {
	var pe portableEnvelope
	if err := json.Unmarshal(blob, &pe); err != nil {
		return nil, errors.Wrap(err, errors.CodeMalformedEnvelope, "envelope blob does not decode")
	}
	if pe.Version != constants.EnvelopeFormatVersion {
		return nil, errors.Newf(errors.CodeMalformedEnvelope, "unsupported envelope version %d", pe.Version)
	}
	if len(pe.Ciphertext) == 0 {
		return nil, errors.New(errors.CodeMalformedEnvelope, "envelope missing ciphertext")
	}
	if len(pe.IV) == 0 {
		return nil, errors.New(errors.CodeMalformedEnvelope, "envelope missing iv")
	}
	if len(pe.WrappedSessionKey) == 0 {
		return nil, errors.New(errors.CodeMalformedEnvelope, "envelope missing wrapped session key")
	}
	if len(pe.Signature) == 0 {
		return nil, errors.New(errors.CodeMalformedEnvelope, "envelope missing signature")
	}
	if pe.SignerCertificate == "" {
		return nil, errors.New(errors.CodeMalformedEnvelope, "envelope missing signer certificate")
	}

	cert, err := s.parseCertificate([]byte(pe.SignerCertificate))
	if err != nil {
		return nil, err
	}

	s.log.Debug(ctx, "envelope imported",
		logger.String("export_id", pe.ExportID),
		logger.String("signer_serial", cert.SerialNumber),
	)

	return &models.EncryptedEnvelope{
		Ciphertext:        pe.Ciphertext,
		IV:                pe.IV,
		WrappedSessionKey: pe.WrappedSessionKey,
		Signature:         pe.Signature,
		SignerCertificate: cert,
	}, nil
}

func (s *SharingService) parseCertificate(pemBytes []byte) (*models.Certificate, error) {
	key := string(pemBytes)
	if cached, ok := s.certCache.Get(key); ok {
		return cached.(*models.Certificate), nil
	}
	cert, err := s.parser.ParseCertificate(pemBytes)
	if err != nil {
		return nil, err
	}
	s.certCache.Set(key, cert, gocache.DefaultExpiration)
	return cert, nil
}
