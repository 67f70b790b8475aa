// Package service defines the domain service interfaces of the trust core.
// The concrete implementations live under internal/infrastructure; tests
// substitute fakes.
package service

import (
	"context"

	"github.com/keyfold/keyfold/internal/domain/models"
)

// TrustService is the single authority over certificate trust state. It is the
// gate consulted before any certificate is used as an encryption target and
// before any signature is believed.
type TrustService interface {
	// IsTrusted reports whether cert is currently trusted: within its validity
	// window and not on the revocation list. The check is re-evaluated on
	// every call; results are never cached across calls. A store failure
	// surfaces as an error and the caller must treat the certificate as
	// untrusted (fail closed).
	IsTrusted(ctx context.Context, cert *models.Certificate) (bool, error)

	// Revoke idempotently adds serial to the revocation list, durably, before
	// returning.
	Revoke(ctx context.Context, serial, revokedBy string) error
}

// CertificateParser validates serialized certificates. Parsing checks the
// embedded self-signature before accepting the certificate as well-formed;
// trust (expiry, revocation) is not evaluated here.
type CertificateParser interface {
	ParseCertificate(pemBytes []byte) (*models.Certificate, error)
}

// RevocationPublisher propagates revocation entries to other installations.
// Publication is best-effort and strictly after the local durable write; a
// publish failure never rolls back a revocation.
type RevocationPublisher interface {
	Publish(ctx context.Context, entry models.RevokedCertificate) error
	Close() error
}
