// Package crypto implements the trust core's cryptographic services: identity
// issuance and trust evaluation (KeyManager), hybrid encryption and signing
// (CryptoManager), and password-based private key sealing (KeyStore).
//
// Primitives come from the standard library and golang.org/x/crypto and are
// treated as a black box; this package owns the policy around them.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/domain/repository"
	"github.com/keyfold/keyfold/internal/domain/service"
	"github.com/keyfold/keyfold/internal/infrastructure/monitoring"
	"github.com/keyfold/keyfold/pkg/constants"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// KeyManager issues identities and is the single authority over certificate
// trust state. It implements service.TrustService and
// service.CertificateParser.
type KeyManager struct {
	store     repository.RevocationStore
	publisher service.RevocationPublisher
	cfg       config.IdentityConfig
	log       logger.Logger

	// issued caches certificates issued by this instance, keyed by serial.
	// Lookup only; trust is never answered from this cache.
	issued *lru.Cache[string, *models.Certificate]
}

// NewKeyManager creates a key manager backed by the given revocation store.
// publisher may be nil when the cross-installation feed is disabled.
func NewKeyManager(store repository.RevocationStore, publisher service.RevocationPublisher, cfg config.IdentityConfig, log logger.Logger) (*KeyManager, error) {
	if store == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "revocation store is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	cacheSize := cfg.CertificateCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	issued, err := lru.New[string, *models.Certificate](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create certificate cache")
	}
	return &KeyManager{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       log.WithComponent("KeyManager"),
		issued:    issued,
	}, nil
}

// GenerateIdentity generates an RSA key pair and a self-signed certificate for
// subjectID, valid from now for the configured window (one year by default).
func (km *KeyManager) GenerateIdentity(ctx context.Context, subjectID string) (*models.Identity, error) {
	if subjectID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "subject id is required")
	}

	bits := km.cfg.RSAKeyBits
	if bits == 0 {
		bits = constants.DefaultRSAKeyBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeKeyGeneration, "rsa key generation failed")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), constants.SerialNumberBits))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeKeyGeneration, "serial number generation failed")
	}

	validity := km.cfg.CertificateValidity
	if validity == 0 {
		validity = constants.DefaultCertificateValidity
	}
	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: subjectID},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		IsCA:                  false,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeKeyGeneration, "certificate creation failed")
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeKeyGeneration, "generated certificate failed to parse")
	}

	cert, err := certificateFromX509(parsed)
	if err != nil {
		return nil, err
	}
	km.issued.Add(cert.SerialNumber, cert)
	monitoring.IdentitiesIssued.Inc()

	km.log.Info(ctx, "identity issued",
		logger.String("subject_id", subjectID),
		logger.String("serial", cert.SerialNumber),
		logger.Time("expires_at", cert.ExpiresAt),
	)

	return &models.Identity{Certificate: cert, PrivateKey: priv}, nil
}

// Revoke idempotently adds serial to the revocation list. The write is durable
// before Revoke returns; publication to the feed, if configured, happens after
// and is best-effort.
func (km *KeyManager) Revoke(ctx context.Context, serial, revokedBy string) error {
	if serial == "" {
		return errors.New(errors.CodeInvalidArgument, "serial number is required")
	}
	entry := models.RevokedCertificate{
		SerialNumber: serial,
		RevokedBy:    revokedBy,
		RevokedAt:    time.Now().UTC(),
	}
	if err := km.store.Revoke(ctx, serial, revokedBy); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to persist revocation")
	}
	monitoring.CertificatesRevoked.Inc()
	km.log.Info(ctx, "certificate revoked",
		logger.String("serial", serial),
		logger.String("revoked_by", revokedBy),
	)

	if km.publisher != nil {
		if err := km.publisher.Publish(ctx, entry); err != nil {
			// Local durability already holds; the feed will be retried by the
			// operator or the next revocation.
			km.log.Warn(ctx, "failed to publish revocation to feed",
				logger.String("serial", serial),
				logger.Err(err),
			)
		}
	}
	return nil
}

// IsTrusted reports whether cert is currently inside its validity window and
// absent from the revocation list. Revocation state is read on every call; a
// store failure surfaces as an error and the certificate must be treated as
// untrusted.
func (km *KeyManager) IsTrusted(ctx context.Context, cert *models.Certificate) (bool, error) {
	if cert == nil {
		return false, errors.New(errors.CodeInvalidArgument, "certificate is required")
	}
	if cert.ExpiredAt(time.Now().UTC()) {
		return false, nil
	}
	revoked, err := km.store.IsRevoked(ctx, cert.SerialNumber)
	if err != nil {
		return false, errors.Wrap(err, errors.CodeStorage, "revocation lookup failed")
	}
	return !revoked, nil
}

// ParseCertificate parses a PEM-encoded certificate and verifies its embedded
// self-signature against its own public key before accepting it. Tampered or
// malformed certificates fail with certificate_integrity; expiry and
// revocation are deliberately not evaluated here.
func (km *KeyManager) ParseCertificate(pemBytes []byte) (*models.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != models.CertificatePEMType {
		return nil, errors.New(errors.CodeCertificateIntegrity, "not a PEM-encoded certificate")
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCertificateIntegrity, "certificate does not parse")
	}
	// Self-signed: the signature over the TBS bytes must verify under the
	// certificate's own public key. No external trust anchor exists here.
	if err := parsed.CheckSignature(parsed.SignatureAlgorithm, parsed.RawTBSCertificate, parsed.Signature); err != nil {
		return nil, errors.Wrap(err, errors.CodeCertificateIntegrity, "self-signature verification failed")
	}
	return certificateFromX509(parsed)
}

// IssuedCertificate returns a certificate previously issued by this instance,
// if still cached. Used by rotation and revocation flows to resolve serials.
func (km *KeyManager) IssuedCertificate(serial string) (*models.Certificate, bool) {
	return km.issued.Get(serial)
}

// ListRevoked returns the full revocation list for operator inspection.
func (km *KeyManager) ListRevoked(ctx context.Context) ([]models.RevokedCertificate, error) {
	entries, err := km.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to list revocations")
	}
	return entries, nil
}

func certificateFromX509(parsed *x509.Certificate) (*models.Certificate, error) {
	pub, ok := parsed.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New(errors.CodeCertificateIntegrity, "certificate public key is not RSA")
	}
	return &models.Certificate{
		SubjectID:    parsed.Subject.CommonName,
		SerialNumber: parsed.SerialNumber.String(),
		IssuedAt:     parsed.NotBefore,
		ExpiresAt:    parsed.NotAfter,
		PublicKey:    pub,
		Raw:          parsed.Raw,
	}, nil
}
