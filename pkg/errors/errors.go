// Package errors defines the structured error type and error codes used across
// the keyfold trust core. Every failure surfaced to a caller carries one of the
// stable codes below so that policy rejections (untrusted certificate) stay
// distinguishable from cryptographic failures (bad ciphertext) without parsing
// message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an AppError.
type Code string

const (
	// CodeKeyGeneration indicates a primitive or resource failure during
	// identity issuance. Not retried: key generation failures are not transient.
	CodeKeyGeneration Code = "key_generation_failed"

	// CodeCertificateIntegrity indicates a malformed or tampered certificate.
	// No trust evaluation is attempted after this error.
	CodeCertificateIntegrity Code = "certificate_integrity"

	// CodeUntrustedRecipient indicates a policy rejection: the target
	// certificate is expired or revoked. Distinct from cryptographic failure.
	CodeUntrustedRecipient Code = "untrusted_recipient"

	// CodeDecryption indicates a decryption failure. The message never reveals
	// whether the key was wrong, the ciphertext corrupted, or the padding
	// invalid.
	CodeDecryption Code = "decryption_failed"

	// CodeAuthentication indicates a KeyStore unlock failure. Wrong password
	// and corrupted blob are deliberately indistinguishable.
	CodeAuthentication Code = "authentication_failed"

	// CodeMalformedEnvelope indicates a structural parse failure on import.
	CodeMalformedEnvelope Code = "malformed_envelope"

	// CodeMalformedEvent indicates a structural parse failure on a revocation
	// feed event.
	CodeMalformedEvent Code = "malformed_event"

	// CodeStorage indicates a persistence failure (revocation list, keystore file).
	CodeStorage Code = "storage_failure"

	// CodeInvalidArgument indicates a caller programming error.
	CodeInvalidArgument Code = "invalid_argument"

	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal_error"
)

// AppError is the structured error returned by all keyfold components.
type AppError struct {
	code    Code
	message string
	cause   error
}

// New creates an AppError with the given code and message.
func New(code Code, message string) *AppError {
	return &AppError{code: code, message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving the chain for
// errors.Is / errors.As.
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{code: code, message: message, cause: err}
}

// Error implements the error interface. The cause is included only for codes
// that are allowed to carry detail; decryption and authentication failures
// stay opaque.
func (e *AppError) Error() string {
	if e.cause != nil && e.code != CodeDecryption && e.code != CodeAuthentication {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the error's classification code.
func (e *AppError) Code() Code {
	return e.code
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// HasCode reports whether err (or anything in its chain) is an AppError with
// the given code.
func HasCode(err error, code Code) bool {
	var appErr *AppError
	for err != nil {
		if stderrors.As(err, &appErr) {
			if appErr.code == code {
				return true
			}
			err = appErr.cause
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of err if it is an AppError, CodeInternal otherwise.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.code
	}
	return CodeInternal
}

// Is re-exports the standard library predicate so callers only import one
// errors package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As re-exports the standard library predicate.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }
