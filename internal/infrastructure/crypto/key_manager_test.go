package crypto_test

import (
	"bytes"
	"context"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/infrastructure/crypto"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/tests/fakes"
)

func newKeyManager(t *testing.T, store *fakes.InMemoryRevocationStore, cfg config.IdentityConfig) *crypto.KeyManager {
	t.Helper()
	km, err := crypto.NewKeyManager(store, nil, cfg, logger.NewNop())
	require.NoError(t, err)
	return km
}

func defaultIdentityConfig() config.IdentityConfig {
	return config.IdentityConfig{
		RSAKeyBits:          2048,
		CertificateValidity: 365 * 24 * time.Hour,
	}
}

func TestGenerateIdentity(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	identity, err := km.GenerateIdentity(context.Background(), "alice")
	require.NoError(t, err)

	cert := identity.Certificate
	assert.Equal(t, "alice", cert.SubjectID)
	assert.NotEmpty(t, cert.SerialNumber)
	assert.NotNil(t, identity.PrivateKey)
	assert.WithinDuration(t, cert.IssuedAt.Add(365*24*time.Hour), cert.ExpiresAt, time.Minute)

	// The certificate's public key must be the pair's public half.
	assert.True(t, identity.PrivateKey.PublicKey.Equal(cert.PublicKey))
}

func TestGenerateIdentityRequiresSubject(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	_, err := km.GenerateIdentity(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestSerialNumbersAreUnique(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	a, err := km.GenerateIdentity(context.Background(), "alice")
	require.NoError(t, err)
	b, err := km.GenerateIdentity(context.Background(), "alice")
	require.NoError(t, err)

	assert.NotEqual(t, a.Certificate.SerialNumber, b.Certificate.SerialNumber)
}

func TestParseCertificateRoundTrip(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	identity, err := km.GenerateIdentity(context.Background(), "alice")
	require.NoError(t, err)

	parsed, err := km.ParseCertificate(identity.Certificate.PEM())
	require.NoError(t, err)
	assert.Equal(t, identity.Certificate.SerialNumber, parsed.SerialNumber)
	assert.Equal(t, identity.Certificate.SubjectID, parsed.SubjectID)
	assert.Equal(t, identity.Certificate.Raw, parsed.Raw)
}

func TestParseCertificateRejectsTampering(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	identity, err := km.GenerateIdentity(context.Background(), "mallory-target")
	require.NoError(t, err)

	// Flip a byte inside the subject common name. The certificate still
	// parses, but the self-signature no longer covers the altered bytes.
	der := append([]byte(nil), identity.Certificate.Raw...)
	idx := bytes.Index(der, []byte("mallory-target"))
	require.Greater(t, idx, 0)
	der[idx] ^= 0x01
	tampered := pem.EncodeToMemory(&pem.Block{Type: models.CertificatePEMType, Bytes: der})

	_, err = km.ParseCertificate(tampered)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCertificateIntegrity, errors.CodeOf(err))
}

func TestParseCertificateRejectsGarbage(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	for _, blob := range [][]byte{
		nil,
		[]byte("not a certificate"),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x01, 0x02}}),
	} {
		_, err := km.ParseCertificate(blob)
		require.Error(t, err)
		assert.Equal(t, errors.CodeCertificateIntegrity, errors.CodeOf(err))
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store := fakes.NewInMemoryRevocationStore()
	km := newKeyManager(t, store, defaultIdentityConfig())
	ctx := context.Background()

	require.NoError(t, km.Revoke(ctx, "12345", "alice"))
	require.NoError(t, km.Revoke(ctx, "12345", "alice"))

	entries, err := km.ListRevoked(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "12345", entries[0].SerialNumber)
	assert.Equal(t, "alice", entries[0].RevokedBy)
}

func TestIsTrusted(t *testing.T) {
	store := fakes.NewInMemoryRevocationStore()
	km := newKeyManager(t, store, defaultIdentityConfig())
	ctx := context.Background()

	identity, err := km.GenerateIdentity(ctx, "alice")
	require.NoError(t, err)

	trusted, err := km.IsTrusted(ctx, identity.Certificate)
	require.NoError(t, err)
	assert.True(t, trusted)

	require.NoError(t, km.Revoke(ctx, identity.Certificate.SerialNumber, "alice"))

	trusted, err = km.IsTrusted(ctx, identity.Certificate)
	require.NoError(t, err)
	assert.False(t, trusted, "revoked certificate must not be trusted")
}

func TestIsTrustedRejectsExpired(t *testing.T) {
	cfg := defaultIdentityConfig()
	cfg.CertificateValidity = -time.Hour // already expired at issuance
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), cfg)
	ctx := context.Background()

	identity, err := km.GenerateIdentity(ctx, "alice")
	require.NoError(t, err)

	trusted, err := km.IsTrusted(ctx, identity.Certificate)
	require.NoError(t, err)
	assert.False(t, trusted, "expired certificate must not be trusted")
}

func TestIsTrustedFailsClosedOnStoreError(t *testing.T) {
	store := fakes.NewInMemoryRevocationStore()
	km := newKeyManager(t, store, defaultIdentityConfig())
	ctx := context.Background()

	identity, err := km.GenerateIdentity(ctx, "alice")
	require.NoError(t, err)

	store.Err = assert.AnError
	trusted, err := km.IsTrusted(ctx, identity.Certificate)
	require.Error(t, err)
	assert.False(t, trusted)
	assert.Equal(t, errors.CodeStorage, errors.CodeOf(err))
}

func TestRevokePublishesToFeed(t *testing.T) {
	store := fakes.NewInMemoryRevocationStore()
	pub := fakes.NewCapturePublisher()
	km, err := crypto.NewKeyManager(store, pub, defaultIdentityConfig(), logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, km.Revoke(ctx, "777", "alice"))

	entries := pub.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "777", entries[0].SerialNumber)
}

func TestRevokeSucceedsWhenFeedFails(t *testing.T) {
	store := fakes.NewInMemoryRevocationStore()
	pub := fakes.NewCapturePublisher()
	pub.Err = assert.AnError
	km, err := crypto.NewKeyManager(store, pub, defaultIdentityConfig(), logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	// Local durability wins; feed publication is best-effort.
	require.NoError(t, km.Revoke(ctx, "888", "alice"))

	revoked, err := store.IsRevoked(ctx, "888")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestIssuedCertificateCache(t *testing.T) {
	km := newKeyManager(t, fakes.NewInMemoryRevocationStore(), defaultIdentityConfig())

	identity, err := km.GenerateIdentity(context.Background(), "alice")
	require.NoError(t, err)

	cached, ok := km.IssuedCertificate(identity.Certificate.SerialNumber)
	require.True(t, ok)
	assert.Equal(t, identity.Certificate, cached)

	_, ok = km.IssuedCertificate("unknown-serial")
	assert.False(t, ok)
}
