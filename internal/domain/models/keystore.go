package models

// KeyStoreRecord is the at-rest form of a user's private key: an AES-256-CBC
// blob under a PBKDF2-derived key. The iteration count is recorded so records
// sealed under older configurations stay unlockable after the configured count
// changes.
type KeyStoreRecord struct {
	// SubjectID identifies the owning user.
	SubjectID string `json:"subject_id"`
	// Salt is the random PBKDF2 salt.
	Salt []byte `json:"salt"`
	// Iterations is the PBKDF2 iteration count used when sealing.
	Iterations int `json:"iterations"`
	// IV is the CBC initialisation vector for the blob.
	IV []byte `json:"iv"`
	// EncryptedPrivateKey is the AES-256-CBC ciphertext of the PKCS#8 DER
	// private key.
	EncryptedPrivateKey []byte `json:"encrypted_private_key"`
	// CertificatePEM is the subject's current certificate, stored alongside
	// for convenience. Not secret.
	CertificatePEM []byte `json:"certificate_pem,omitempty"`
}
