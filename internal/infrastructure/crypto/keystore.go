package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"

	"golang.org/x/crypto/pbkdf2"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/infrastructure/monitoring"
	"github.com/keyfold/keyfold/pkg/constants"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

// KeyStore seals and unlocks private key material at rest. The sealing key is
// derived from the user's password with PBKDF2-HMAC-SHA256; the private key is
// stored only as an AES-256-CBC blob and never in plaintext.
type KeyStore struct {
	iterations int
	log        logger.Logger
}

// NewKeyStore creates a KeyStore with the configured iteration count. The
// count applies to new seals; unlocking honours the count recorded in each
// record.
func NewKeyStore(cfg config.KDFConfig, log logger.Logger) *KeyStore {
	iterations := cfg.Iterations
	if iterations == 0 {
		iterations = constants.DefaultPBKDF2Iterations
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &KeyStore{iterations: iterations, log: log.WithComponent("KeyStore")}
}

// Seal encrypts priv under a key derived from password with a fresh random
// salt and IV. The returned record carries everything needed to unlock except
// the password.
func (ks *KeyStore) Seal(priv *rsa.PrivateKey, password string) (*models.KeyStoreRecord, error) {
	if priv == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "private key is required")
	}
	if password == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "password is required")
	}

	salt := make([]byte, constants.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "salt generation failed")
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "iv generation failed")
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "private key serialization failed")
	}

	key := pbkdf2.Key([]byte(password), salt, ks.iterations, constants.SessionKeyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "cipher initialisation failed")
	}
	padded := pkcs7Pad(der, aes.BlockSize)
	blob := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(blob, padded)

	return &models.KeyStoreRecord{
		Salt:                salt,
		Iterations:          ks.iterations,
		IV:                  iv,
		EncryptedPrivateKey: blob,
	}, nil
}

var errUnlock = errors.New(errors.CodeAuthentication, "keystore unlock failed")

// Unlock derives the sealing key from password and the record's salt and
// decrypts the private key.
//
// A wrong password and a corrupted blob are indistinguishable here: both
// return the same authentication_failed error with the same message.
func (ks *KeyStore) Unlock(record *models.KeyStoreRecord, password string) (*rsa.PrivateKey, error) {
	if record == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "keystore record is required")
	}

	iterations := record.Iterations
	if iterations <= 0 {
		monitoring.UnlockFailures.Inc()
		return nil, errUnlock
	}
	if len(record.IV) != aes.BlockSize || len(record.EncryptedPrivateKey) == 0 || len(record.EncryptedPrivateKey)%aes.BlockSize != 0 {
		monitoring.UnlockFailures.Inc()
		return nil, errUnlock
	}

	key := pbkdf2.Key([]byte(password), record.Salt, iterations, constants.SessionKeyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		monitoring.UnlockFailures.Inc()
		return nil, errUnlock
	}
	padded := make([]byte, len(record.EncryptedPrivateKey))
	cipher.NewCBCDecrypter(block, record.IV).CryptBlocks(padded, record.EncryptedPrivateKey)

	der, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		monitoring.UnlockFailures.Inc()
		return nil, errUnlock
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		monitoring.UnlockFailures.Inc()
		return nil, errUnlock
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		monitoring.UnlockFailures.Inc()
		return nil, errUnlock
	}
	return priv, nil
}
