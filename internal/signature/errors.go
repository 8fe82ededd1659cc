package signature

import "fmt"

// Error codes for signature inspection
const (
	ErrCodeMalformed            = "MALFORMED_XML"
	ErrCodeNoInvoice            = "NO_INFNFE"
	ErrCodeNoSignature          = "NO_SIGNATURE"
	ErrCodeReferenceMismatch    = "REFERENCE_MISMATCH"
	ErrCodeDigestMismatch       = "DIGEST_MISMATCH"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeUnsupportedAlgorithm = "UNSUPPORTED_ALGORITHM"
	ErrCodeCertMissing          = "CERT_MISSING"
	ErrCodeCertExpired          = "CERT_EXPIRED"
	ErrCodeCertNotYetValid      = "CERT_NOT_YET_VALID"
	ErrCodeChainInvalid         = "CHAIN_INVALID"
	ErrCodeCertRevoked          = "CERT_REVOKED"
	ErrCodeRevocationUnknown    = "REVOCATION_UNKNOWN"
)

// SignatureError represents signature inspection errors
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	if e.Field != "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Code, e.Field, e.Message, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrMalformed returns error when the document cannot be read
func ErrMalformed(cause error) *SignatureError {
	return NewSignatureError(ErrCodeMalformed, "", "document is not well-formed XML", cause)
}

// ErrNoInvoice returns error when the document has no infNFe element
func ErrNoInvoice() *SignatureError {
	return NewSignatureError(ErrCodeNoInvoice, "", "no infNFe element found in document", nil)
}

// ErrNoSignature returns error when no signature found in document
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrUnsupportedAlgorithm returns error for digest or signature methods outside RSA with SHA-1/SHA-256
func ErrUnsupportedAlgorithm(field, uri string) *SignatureError {
	return NewSignatureError(ErrCodeUnsupportedAlgorithm, field, fmt.Sprintf("unsupported algorithm: %s", uri), nil)
}
