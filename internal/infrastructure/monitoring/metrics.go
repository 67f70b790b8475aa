// Package monitoring provides the zap-backed logger implementation and
// prometheus instrumentation for the trust core.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IdentitiesIssued counts generated key pair + certificate identities.
	IdentitiesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyfold",
		Name:      "identities_issued_total",
		Help:      "Number of identities (key pair + self-signed certificate) issued.",
	})

	// CertificatesRevoked counts durable revocation list appends.
	CertificatesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyfold",
		Name:      "certificates_revoked_total",
		Help:      "Number of certificate serials added to the revocation list.",
	})

	// EnvelopesEncrypted counts successful encrypt+sign operations.
	EnvelopesEncrypted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyfold",
		Name:      "envelopes_encrypted_total",
		Help:      "Number of envelopes produced by encrypt+sign.",
	})

	// VerifyFailures counts failed verifications by reason: untrusted,
	// decrypt, signature.
	VerifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keyfold",
		Name:      "verify_failures_total",
		Help:      "Number of envelope verifications that did not succeed.",
	}, []string{"reason"})

	// DecryptFailures counts opaque decryption failures.
	DecryptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyfold",
		Name:      "decrypt_failures_total",
		Help:      "Number of envelope decryption failures.",
	})

	// UnlockFailures counts keystore unlock failures. Wrong password and
	// corrupted record both land here; the two are not distinguished anywhere.
	UnlockFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyfold",
		Name:      "keystore_unlock_failures_total",
		Help:      "Number of keystore unlock failures.",
	})
)
