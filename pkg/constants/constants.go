// Package constants defines shared defaults and identifiers for the keyfold
// trust core. Cryptographic parameters here are defaults only; the effective
// values come from configuration (internal/config).
package constants

import "time"

// Key derivation defaults (KeyStore sealing).
const (
	// DefaultPBKDF2Iterations is the default PBKDF2-HMAC-SHA256 iteration count.
	DefaultPBKDF2Iterations = 100000
	// MinPBKDF2Iterations is the lowest iteration count accepted by config validation.
	MinPBKDF2Iterations = 10000
	// SaltLength is the length in bytes of KeyStore salts.
	SaltLength = 16
)

// Symmetric cipher parameters (AES-256-CBC).
const (
	SessionKeyLength = 32
	AESBlockSize     = 16
)

// Identity issuance defaults.
const (
	// DefaultRSAKeyBits is the modulus size for generated identities.
	DefaultRSAKeyBits = 2048
	// DefaultCertificateValidity is the self-signed certificate validity window.
	DefaultCertificateValidity = 365 * 24 * time.Hour
	// SerialNumberBits is the size of randomly drawn certificate serial numbers.
	SerialNumberBits = 128
)

// EnvelopeFormatVersion identifies the portable export blob layout. Importers
// reject blobs carrying an unknown version.
const EnvelopeFormatVersion = 1

// ContextKey is the type used for values stored in a context.Context.
type ContextKey string

const (
	// ContextKeySubjectID carries the acting subject through an operation.
	ContextKeySubjectID ContextKey = "subject_id"
	// ContextKeyRequestID carries a correlation identifier for logging.
	ContextKeyRequestID ContextKey = "request_id"
)
