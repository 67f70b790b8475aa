package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/application"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/infrastructure/crypto"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/tests/fakes"
)

type identityFixture struct {
	store   *fakes.InMemoryRevocationStore
	records *fakes.InMemoryKeystoreRepository
	keys    *crypto.KeyManager
	svc     *application.IdentityService
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	store := fakes.NewInMemoryRevocationStore()
	records := fakes.NewInMemoryKeystoreRepository()
	km, err := crypto.NewKeyManager(store, nil, config.IdentityConfig{
		RSAKeyBits:          2048,
		CertificateValidity: 365 * 24 * time.Hour,
	}, logger.NewNop())
	require.NoError(t, err)
	ks := crypto.NewKeyStore(config.KDFConfig{Iterations: 1000}, logger.NewNop())
	svc, err := application.NewIdentityService(km, ks, records, logger.NewNop())
	require.NoError(t, err)
	return &identityFixture{store: store, records: records, keys: km, svc: svc}
}

func TestProvisionAndUnlock(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	provisioned, err := f.svc.Provision(ctx, "alice", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, provisioned)
	assert.Equal(t, "alice", provisioned.Certificate.SubjectID)

	unlocked, err := f.svc.Unlock(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, provisioned.PrivateKey.Equal(unlocked.PrivateKey))
	assert.Equal(t, provisioned.Certificate.SerialNumber, unlocked.Certificate.SerialNumber)
}

func TestProvisionRefusesExistingSubject(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	_, err := f.svc.Provision(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = f.svc.Provision(ctx, "alice", "another")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestUnlockWrongPassword(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	_, err := f.svc.Provision(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = f.svc.Unlock(ctx, "alice", "nope")
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthentication, errors.CodeOf(err))
}

func TestUnlockUnknownSubject(t *testing.T) {
	f := newIdentityFixture(t)

	_, err := f.svc.Unlock(context.Background(), "nobody", "pw")
	require.Error(t, err)
	assert.Equal(t, errors.CodeStorage, errors.CodeOf(err))
}

func TestRotateRevokesOldCertificate(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	old, err := f.svc.Provision(ctx, "alice", "s3cret")
	require.NoError(t, err)

	rotated, err := f.svc.Rotate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, old.Certificate.SerialNumber, rotated.Certificate.SerialNumber)

	// The old certificate is revoked; the new one is trusted.
	trusted, err := f.keys.IsTrusted(ctx, old.Certificate)
	require.NoError(t, err)
	assert.False(t, trusted)
	trusted, err = f.keys.IsTrusted(ctx, rotated.Certificate)
	require.NoError(t, err)
	assert.True(t, trusted)

	// Unlock now yields the rotated identity.
	unlocked, err := f.svc.Unlock(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, rotated.Certificate.SerialNumber, unlocked.Certificate.SerialNumber)
}

func TestRotateRequiresPassword(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	old, err := f.svc.Provision(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = f.svc.Rotate(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthentication, errors.CodeOf(err))

	// Nothing changed: the original certificate is still trusted.
	trusted, err := f.keys.IsTrusted(ctx, old.Certificate)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestRetire(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	identity, err := f.svc.Provision(ctx, "alice", "s3cret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Retire(ctx, "alice", "s3cret"))

	trusted, err := f.keys.IsTrusted(ctx, identity.Certificate)
	require.NoError(t, err)
	assert.False(t, trusted)

	// The sealed record survives so old envelopes stay decryptable.
	unlocked, err := f.svc.Unlock(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, identity.PrivateKey.Equal(unlocked.PrivateKey))
}
