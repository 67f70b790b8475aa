// Package models holds the domain objects of the keyfold trust core:
// identities, certificates, envelopes and persisted record shapes. These types
// carry no behaviour beyond accessors; policy lives in the services that use
// them.
package models

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"time"
)

// CertificatePEMType is the PEM block type for serialized certificates.
const CertificatePEMType = "CERTIFICATE"

// Certificate is the parsed, integrity-checked view of a self-signed X.509
// certificate binding a subject to an RSA public key.
//
// A Certificate value only exists after the self-signature embedded in Raw has
// been verified against PublicKey; construction happens in the key manager.
// Whether the certificate is currently trusted (non-expired, non-revoked) is a
// separate question answered by TrustService at evaluation time.
type Certificate struct {
	// SubjectID is the common name the certificate was issued to.
	SubjectID string
	// SerialNumber is the decimal form of the X.509 serial. Revocation tracks
	// this value.
	SerialNumber string
	// IssuedAt is the start of the validity window (NotBefore).
	IssuedAt time.Time
	// ExpiresAt is the end of the validity window (NotAfter), one year after
	// issuance for certificates issued by this installation.
	ExpiresAt time.Time
	// PublicKey is the RSA public key the certificate attests to.
	PublicKey *rsa.PublicKey
	// Raw is the DER encoding, kept verbatim so exported envelopes embed the
	// exact bytes that were signed.
	Raw []byte
}

// PEM returns the certificate in PEM encoding.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: CertificatePEMType, Bytes: c.Raw})
}

// Fingerprint returns the hex SHA-256 digest of the DER encoding.
func (c *Certificate) Fingerprint() string {
	sum := sha256.Sum256(c.Raw)
	return hex.EncodeToString(sum[:])
}

// ExpiredAt reports whether the certificate validity window has closed at the
// given instant.
func (c *Certificate) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// KeyPair is a generated RSA key pair. The private half is sensitive: it is
// held in process memory only and is persisted exclusively through
// KeyStore.Seal.
type KeyPair struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// Identity bundles a subject's key pair with its self-signed certificate. It
// is what the crypto manager signs with and what rotation replaces as a unit.
type Identity struct {
	Certificate *Certificate
	PrivateKey  *rsa.PrivateKey
}
