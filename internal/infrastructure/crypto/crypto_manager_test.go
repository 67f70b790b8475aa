package crypto_test

import (
	"context"
	"crypto/aes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/infrastructure/crypto"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/tests/fakes"
)

type cryptoFixture struct {
	store *fakes.InMemoryRevocationStore
	keys  *crypto.KeyManager
	cm    *crypto.CryptoManager
	alice *models.Identity
	bob   *models.Identity
}

func newCryptoFixture(t *testing.T) *cryptoFixture {
	t.Helper()
	store := fakes.NewInMemoryRevocationStore()
	km := newKeyManager(t, store, defaultIdentityConfig())
	cm, err := crypto.NewCryptoManager(km, logger.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	alice, err := km.GenerateIdentity(ctx, "alice")
	require.NoError(t, err)
	bob, err := km.GenerateIdentity(ctx, "bob")
	require.NoError(t, err)

	return &cryptoFixture{store: store, keys: km, cm: cm, alice: alice, bob: bob}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	for _, plaintext := range [][]byte{
		[]byte("hello, bob"),
		[]byte(""),
		[]byte("exactly sixteen!"), // one full block, forces a padding block
		make([]byte, 10_000),
	} {
		env, err := f.cm.Encrypt(ctx, plaintext, f.bob.Certificate, f.alice)
		require.NoError(t, err)
		require.NotNil(t, env)
		assert.Len(t, env.IV, aes.BlockSize)
		assert.Zero(t, len(env.Ciphertext)%aes.BlockSize)
		assert.Same(t, f.alice.Certificate, env.SignerCertificate)

		got, err := f.cm.Decrypt(ctx, env, f.bob.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptDrawsFreshSessionKeyAndIV(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()
	plaintext := []byte("same message twice")

	a, err := f.cm.Encrypt(ctx, plaintext, f.bob.Certificate, f.alice)
	require.NoError(t, err)
	b, err := f.cm.Encrypt(ctx, plaintext, f.bob.Certificate, f.alice)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.WrappedSessionKey, b.WrappedSessionKey)
}

func TestEncryptRejectsUntrustedRecipient(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	require.NoError(t, f.keys.Revoke(ctx, f.bob.Certificate.SerialNumber, "bob"))

	_, err := f.cm.Encrypt(ctx, []byte("secret"), f.bob.Certificate, f.alice)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUntrustedRecipient, errors.CodeOf(err))
}

func TestEncryptRejectsExpiredRecipient(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	cfg := defaultIdentityConfig()
	cfg.CertificateValidity = -time.Hour
	expiredKM := newKeyManager(t, f.store, cfg)
	stale, err := expiredKM.GenerateIdentity(ctx, "stale")
	require.NoError(t, err)

	_, err = f.cm.Encrypt(ctx, []byte("secret"), stale.Certificate, f.alice)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUntrustedRecipient, errors.CodeOf(err))
}

func TestEncryptFailsClosedOnStoreError(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	f.store.Err = assert.AnError
	_, err := f.cm.Encrypt(ctx, []byte("secret"), f.bob.Certificate, f.alice)
	require.Error(t, err)
	assert.Equal(t, errors.CodeStorage, errors.CodeOf(err))
}

func TestDecryptWithWrongKeyIsOpaque(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("for bob only"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	_, err = f.cm.Decrypt(ctx, env, f.alice.PrivateKey)
	require.Error(t, err)
	assert.Equal(t, errors.CodeDecryption, errors.CodeOf(err))
	assert.EqualError(t, err, "decryption_failed: unable to decrypt envelope")
}

func TestDecryptTamperedCiphertextIsOpaque(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("for bob only"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	// Flip one bit in the last block; padding validation must fail without
	// saying why.
	env.Ciphertext[len(env.Ciphertext)-1] ^= 0x01
	_, err = f.cm.Decrypt(ctx, env, f.bob.PrivateKey)
	require.Error(t, err)
	assert.Equal(t, errors.CodeDecryption, errors.CodeOf(err))
	assert.EqualError(t, err, "decryption_failed: unable to decrypt envelope")
}

func TestDecryptIgnoresRevocation(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("written before revocation"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	require.NoError(t, f.keys.Revoke(ctx, f.alice.Certificate.SerialNumber, "alice"))
	require.NoError(t, f.keys.Revoke(ctx, f.bob.Certificate.SerialNumber, "bob"))

	got, err := f.cm.Decrypt(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("written before revocation"), got)
}

func TestVerifyValidEnvelope(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("signed by alice"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyAfterSignerRevocation(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("signed by alice"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	require.True(t, ok)

	// Revocation is retroactive: the same envelope stops verifying.
	require.NoError(t, f.keys.Revoke(ctx, f.alice.Certificate.SerialNumber, "alice"))

	ok, err = f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.False(t, ok)

	// But the content remains readable.
	got, err := f.cm.Decrypt(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("signed by alice"), got)
}

func TestVerifyExpiredSigner(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	cfg := defaultIdentityConfig()
	cfg.CertificateValidity = -time.Hour
	expiredKM := newKeyManager(t, f.store, cfg)
	stale, err := expiredKM.GenerateIdentity(ctx, "stale")
	require.NoError(t, err)

	env, err := f.cm.Encrypt(ctx, []byte("signed by a dead cert"), f.bob.Certificate, stale)
	require.NoError(t, err)

	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTamperedSignature(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("signed by alice"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	env.Signature[0] ^= 0x01
	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySubstitutedSigner(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("signed by alice"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	// Claiming bob signed it must fail: the signature was made by alice.
	env.SignerCertificate = f.bob.Certificate
	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUndecryptableEnvelope(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("signed by alice"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	env.WrappedSessionKey[0] ^= 0x01
	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, errors.CodeDecryption, errors.CodeOf(err))
}

func TestVerifyFailsClosedOnStoreError(t *testing.T) {
	f := newCryptoFixture(t)
	ctx := context.Background()

	env, err := f.cm.Encrypt(ctx, []byte("signed by alice"), f.bob.Certificate, f.alice)
	require.NoError(t, err)

	f.store.Err = assert.AnError
	ok, err := f.cm.Verify(ctx, env, f.bob.PrivateKey)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, errors.CodeStorage, errors.CodeOf(err))
}
