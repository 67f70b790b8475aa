package models

// EncryptedEnvelope is the immutable output of an encrypt+sign operation.
//
// The session key and IV are fresh per envelope. The signature is RSA-PSS over
// the plaintext, so its validity does not depend on the symmetric parameters,
// and SignerCertificate is embedded verbatim so verification needs no lookup
// beyond the local revocation list.
type EncryptedEnvelope struct {
	// Ciphertext is the AES-256-CBC encryption of the record bytes.
	Ciphertext []byte
	// IV is the CBC initialisation vector.
	IV []byte
	// WrappedSessionKey is the session key encrypted with RSA-OAEP-SHA256
	// under the recipient's public key.
	WrappedSessionKey []byte
	// Signature is the RSA-PSS-SHA256 signature over the plaintext.
	Signature []byte
	// SignerCertificate is the signer's self-signed certificate.
	SignerCertificate *Certificate
}
