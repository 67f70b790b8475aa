package crypto

import (
	"context"
	stdcrypto "crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/keyfold/keyfold/internal/domain/models"
	"github.com/keyfold/keyfold/internal/domain/service"
	"github.com/keyfold/keyfold/internal/infrastructure/monitoring"
	"github.com/keyfold/keyfold/pkg/constants"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
)

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: stdcrypto.SHA256}

// CryptoManager performs the confidentiality and authenticity transforms:
// hybrid encryption (AES-256-CBC bulk, RSA-OAEP key wrap) and RSA-PSS
// signing over the plaintext. Trust decisions are delegated to the injected
// TrustService and re-evaluated on every operation.
type CryptoManager struct {
	trust service.TrustService
	log   logger.Logger
}

// NewCryptoManager creates a CryptoManager gated by the given trust service.
func NewCryptoManager(trust service.TrustService, log logger.Logger) (*CryptoManager, error) {
	if trust == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "trust service is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CryptoManager{trust: trust, log: log.WithComponent("CryptoManager")}, nil
}

// Encrypt encrypts plaintext to recipient and signs it as signer.
//
// The recipient certificate must be trusted at call time; encrypting to a
// revoked or expired certificate fails with untrusted_recipient. A fresh
// session key and IV are drawn per call and never reused. The signature is
// RSA-PSS-SHA256 over the plaintext, so it binds to the content independently
// of the symmetric parameters.
func (cm *CryptoManager) Encrypt(ctx context.Context, plaintext []byte, recipient *models.Certificate, signer *models.Identity) (*models.EncryptedEnvelope, error) {
	if recipient == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "recipient certificate is required")
	}
	if signer == nil || signer.Certificate == nil || signer.PrivateKey == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "signer identity is required")
	}

	trusted, err := cm.trust.IsTrusted(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, errors.Newf(errors.CodeUntrustedRecipient, "recipient certificate %s is not trusted", recipient.SerialNumber)
	}

	sessionKey := make([]byte, constants.SessionKeyLength)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "session key generation failed")
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "iv generation failed")
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "cipher initialisation failed")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient.PublicKey, sessionKey, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "session key wrap failed")
	}

	digest := sha256.Sum256(plaintext)
	signature, err := rsa.SignPSS(rand.Reader, signer.PrivateKey, stdcrypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "signing failed")
	}

	monitoring.EnvelopesEncrypted.Inc()
	return &models.EncryptedEnvelope{
		Ciphertext:        ciphertext,
		IV:                iv,
		WrappedSessionKey: wrapped,
		Signature:         signature,
		SignerCertificate: signer.Certificate,
	}, nil
}

// Decrypt unwraps the session key with the recipient's private key and
// decrypts the ciphertext. Confidentiality does not depend on revocation
// state, so no trust check happens here.
//
// Every primitive failure (wrong key, corrupted ciphertext, bad padding)
// surfaces as the same opaque decryption_failed error: distinguishing them
// would hand a padding oracle to an attacker.
func (cm *CryptoManager) Decrypt(ctx context.Context, env *models.EncryptedEnvelope, priv *rsa.PrivateKey) ([]byte, error) {
	if env == nil || priv == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "envelope and private key are required")
	}

	plaintext, err := cm.decrypt(env, priv)
	if err != nil {
		monitoring.DecryptFailures.Inc()
		return nil, errDecryption
	}
	return plaintext, nil
}

var errDecryption = errors.New(errors.CodeDecryption, "unable to decrypt envelope")

func (cm *CryptoManager) decrypt(env *models.EncryptedEnvelope, priv *rsa.PrivateKey) ([]byte, error) {
	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, env.WrappedSessionKey, nil)
	if err != nil {
		return nil, err
	}
	if len(sessionKey) != constants.SessionKeyLength {
		return nil, errDecryption
	}
	if len(env.IV) != aes.BlockSize || len(env.Ciphertext) == 0 || len(env.Ciphertext)%aes.BlockSize != 0 {
		return nil, errDecryption
	}
	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, err
	}
	padded := make([]byte, len(env.Ciphertext))
	cipher.NewCBCDecrypter(block, env.IV).CryptBlocks(padded, env.Ciphertext)
	return pkcs7Unpad(padded, aes.BlockSize)
}

// Verify re-evaluates trust in the signer's certificate and, only if trusted,
// decrypts the envelope and verifies the RSA-PSS signature over the recovered
// plaintext.
//
// Trust is checked at verify time, not creation time: revoking a certificate
// retroactively invalidates every signature it ever produced. An untrusted,
// expired or tampered envelope yields (false, nil); content that cannot be
// decrypted yields (false, decryption_failed) because a signature must never
// be confirmed over bytes the verifier could not also recover.
func (cm *CryptoManager) Verify(ctx context.Context, env *models.EncryptedEnvelope, priv *rsa.PrivateKey) (bool, error) {
	if env == nil || env.SignerCertificate == nil || priv == nil {
		return false, errors.New(errors.CodeInvalidArgument, "envelope with signer certificate and private key are required")
	}

	trusted, err := cm.trust.IsTrusted(ctx, env.SignerCertificate)
	if err != nil {
		return false, err
	}
	if !trusted {
		monitoring.VerifyFailures.WithLabelValues("untrusted").Inc()
		cm.log.Debug(ctx, "verification rejected: signer not trusted",
			logger.String("serial", env.SignerCertificate.SerialNumber),
		)
		return false, nil
	}

	plaintext, err := cm.decrypt(env, priv)
	if err != nil {
		monitoring.VerifyFailures.WithLabelValues("decrypt").Inc()
		return false, errDecryption
	}

	digest := sha256.Sum256(plaintext)
	if err := rsa.VerifyPSS(env.SignerCertificate.PublicKey, stdcrypto.SHA256, digest[:], env.Signature, pssOptions); err != nil {
		monitoring.VerifyFailures.WithLabelValues("signature").Inc()
		return false, nil
	}
	return true, nil
}
