package crypto

import "github.com/keyfold/keyfold/pkg/errors"

// pkcs7Pad appends PKCS#7 padding up to blockSize. Input of a whole number of
// blocks gains a full padding block, so padding is always removable.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips PKCS#7 padding. Callers must map the returned error to a
// single opaque decryption failure; the distinct error here exists only for
// internal control flow and carries no detail.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New(errors.CodeDecryption, "unable to decrypt")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New(errors.CodeDecryption, "unable to decrypt")
	}
	// Check every padding byte; rejecting early on the first mismatch would
	// narrow the failure class observable by a caller.
	valid := true
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			valid = false
		}
	}
	if !valid {
		return nil, errors.New(errors.CodeDecryption, "unable to decrypt")
	}
	return data[:len(data)-padLen], nil
}
