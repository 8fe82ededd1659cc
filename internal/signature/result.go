package signature

import (
	"crypto/x509"
	"strings"
	"time"
)

// VerificationResult contains the signature inspection outcome of one NFe
type VerificationResult struct {
	// Overall validity - true only if the digest and the signature both check out
	Valid bool `json:"valid"`

	SignatureFound      bool `json:"signature_found"`
	ReferenceMatchesKey bool `json:"reference_matches_key"`
	DigestValid         bool `json:"digest_valid"`
	SignatureValid      bool `json:"signature_valid"`
	CertValid           bool `json:"cert_valid"`
	CertChainValid      bool `json:"cert_chain_valid,omitempty"`
	NotRevoked          bool `json:"not_revoked,omitempty"`

	// Reference is the URI the signature points to, e.g. "#NFe3525..."
	Reference string `json:"reference,omitempty"`

	Signer *SignerInfo `json:"signer,omitempty"`

	// Certificate chain (not serialized to JSON)
	CertChain []*x509.Certificate `json:"-"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// SignerInfo contains certificate subject information
type SignerInfo struct {
	Name         string    `json:"name"`
	TaxID        string    `json:"cnpj,omitempty"`
	Organization string    `json:"organization,omitempty"`
	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

// NewVerificationResult creates a new empty result
func NewVerificationResult() *VerificationResult {
	return &VerificationResult{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// AddWarning adds a warning message to the result
func (r *VerificationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError adds an error message and sets Valid to false
func (r *VerificationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// SetSigner populates SignerInfo from an x509 certificate.
// ICP-Brasil e-CNPJ certificates carry the CNPJ after a colon in the CN.
func (r *VerificationResult) SetSigner(cert *x509.Certificate) {
	if cert == nil {
		return
	}

	signer := &SignerInfo{
		Name:         cert.Subject.CommonName,
		SerialNumber: cert.SerialNumber.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}

	if name, taxID, ok := strings.Cut(cert.Subject.CommonName, ":"); ok && isDigits(taxID) && len(taxID) == 14 {
		signer.Name = name
		signer.TaxID = taxID
	}

	if len(cert.Subject.Organization) > 0 {
		signer.Organization = cert.Subject.Organization[0]
	}

	if len(cert.Issuer.CommonName) > 0 {
		signer.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		signer.Issuer = cert.Issuer.Organization[0]
	}

	r.Signer = signer
}

// ComputeValidity sets the Valid field based on individual check results
func (r *VerificationResult) ComputeValidity() {
	r.Valid = r.SignatureFound &&
		r.DigestValid &&
		r.SignatureValid &&
		len(r.Errors) == 0
}

// Notes returns warnings and errors as operator-facing lines
func (r *VerificationResult) Notes() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, e := range r.Errors {
		out = append(out, "assinatura: "+e)
	}
	for _, w := range r.Warnings {
		out = append(out, "assinatura: "+w)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
