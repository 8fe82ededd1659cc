// Package signature inspects the XMLDSig signature carried by NFe documents.
//
// An NFe signs its infNFe element from a sibling Signature element whose
// Reference URI is "#" plus the infNFe Id ("NFe" followed by the access key).
package signature

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/rezonia/nfe-conferencia/internal/signature/trust"
)

// Algorithm identifiers accepted in SignedInfo
const (
	DigestSHA1      = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	SignatureRSA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	SignatureRSA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
)

var digestHashes = map[string]crypto.Hash{
	DigestSHA1:   crypto.SHA1,
	DigestSHA256: crypto.SHA256,
}

var signatureHashes = map[string]crypto.Hash{
	SignatureRSA1:   crypto.SHA1,
	SignatureRSA256: crypto.SHA256,
}

// Verifier inspects NFe signatures
type Verifier struct {
	trustStore *trust.TrustStore
	revocation *trust.RevocationChecker
	now        func() time.Time
}

// Option configures the verifier
type Option func(*Verifier)

// WithTrustStore enables chain verification against the given roots
func WithTrustStore(ts *trust.TrustStore) Option {
	return func(v *Verifier) {
		v.trustStore = ts
	}
}

// WithRevocation asks the issuer's OCSP responder about the signer certificate.
// It needs a trust store, since the issuer comes from the verified chain.
func WithRevocation(rc *trust.RevocationChecker) Option {
	return func(v *Verifier) {
		v.revocation = rc
	}
}

// WithClock sets the time used for certificate validity checks
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a new verifier
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the reference, digest and signature value of an NFe document.
// accessKey may be empty; when set, the signed reference must point at it.
// The returned error is non-nil only when the document carries no inspectable signature.
func (v *Verifier) Verify(data []byte, accessKey string) (*VerificationResult, error) {
	result := NewVerificationResult()

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		e := ErrMalformed(err)
		result.AddError(e.Error())
		return result, e
	}

	inf := findElement(doc.Root(), "infNFe")
	if inf == nil {
		e := ErrNoInvoice()
		result.AddError(e.Error())
		return result, e
	}

	sig := findSignature(inf)
	if sig == nil {
		e := ErrNoSignature()
		result.AddError(e.Error())
		return result, e
	}
	result.SignatureFound = true

	signedInfo := childElement(sig, "SignedInfo")
	if signedInfo == nil {
		result.AddError("Signature has no SignedInfo")
		return result, nil
	}

	v.checkReference(result, inf, signedInfo, accessKey)
	v.checkDigest(result, inf, signedInfo)

	cert := v.checkCertificate(result, sig)
	if cert != nil {
		v.checkSignatureValue(result, sig, signedInfo, cert)
	}

	result.ComputeValidity()
	return result, nil
}

func (v *Verifier) checkReference(result *VerificationResult, inf, signedInfo *etree.Element, accessKey string) {
	ref := childElement(signedInfo, "Reference")
	if ref == nil {
		result.AddError("SignedInfo has no Reference")
		return
	}
	result.Reference = ref.SelectAttrValue("URI", "")

	id := inf.SelectAttrValue("Id", "")
	if result.Reference != "#"+id {
		result.AddError(fmt.Sprintf("[%s] signature references %q but infNFe Id is %q",
			ErrCodeReferenceMismatch, result.Reference, id))
		return
	}

	if accessKey == "" {
		result.ReferenceMatchesKey = true
		return
	}
	result.ReferenceMatchesKey = id == "NFe"+accessKey
	if !result.ReferenceMatchesKey {
		result.AddWarning(fmt.Sprintf("signed document %s does not match access key %s", id, accessKey))
	}
}

func (v *Verifier) checkDigest(result *VerificationResult, inf, signedInfo *etree.Element) {
	ref := childElement(signedInfo, "Reference")
	if ref == nil {
		return
	}

	method := ""
	if dm := childElement(ref, "DigestMethod"); dm != nil {
		method = dm.SelectAttrValue("Algorithm", "")
	}
	hash, ok := digestHashes[method]
	if !ok {
		result.AddError(ErrUnsupportedAlgorithm("DigestMethod", method).Error())
		return
	}

	expected, err := base64.StdEncoding.DecodeString(compact(childText(ref, "DigestValue")))
	if err != nil {
		result.AddError(fmt.Sprintf("DigestValue is not base64: %v", err))
		return
	}

	canonical, err := Canonicalize(inf)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to canonicalize infNFe: %v", err))
		return
	}

	h := hash.New()
	h.Write(canonical)
	result.DigestValid = bytes.Equal(h.Sum(nil), expected)
	if !result.DigestValid {
		result.AddError(fmt.Sprintf("[%s] infNFe content does not match the signed digest", ErrCodeDigestMismatch))
	}
}

func (v *Verifier) checkCertificate(result *VerificationResult, sig *etree.Element) *x509.Certificate {
	certElem := findElement(sig, "X509Certificate")
	if certElem == nil {
		result.AddWarning(fmt.Sprintf("[%s] signature carries no X509Certificate", ErrCodeCertMissing))
		return nil
	}

	der, err := base64.StdEncoding.DecodeString(compact(certElem.Text()))
	if err != nil {
		result.AddError(fmt.Sprintf("failed to decode certificate: %v", err))
		return nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to parse certificate: %v", err))
		return nil
	}
	result.SetSigner(cert)

	now := v.now()
	switch {
	case now.Before(cert.NotBefore):
		result.AddWarning(fmt.Sprintf("[%s] certificate valid from %s", ErrCodeCertNotYetValid, cert.NotBefore.Format(time.DateOnly)))
	case now.After(cert.NotAfter):
		// Old invoices outlive their signing certificate
		result.AddWarning(fmt.Sprintf("[%s] certificate expired on %s", ErrCodeCertExpired, cert.NotAfter.Format(time.DateOnly)))
	default:
		result.CertValid = true
	}

	if !v.trustStore.Empty() {
		chain, err := v.trustStore.VerifyChain(cert, nil, cert.NotBefore.Add(time.Minute))
		if err != nil {
			result.AddWarning(fmt.Sprintf("[%s] %v", ErrCodeChainInvalid, err))
		} else {
			result.CertChain = chain
			result.CertChainValid = true
			v.checkRevocation(result, chain)
		}
	}
	return cert
}

func (v *Verifier) checkRevocation(result *VerificationResult, chain []*x509.Certificate) {
	if v.revocation == nil || len(chain) < 2 {
		return
	}
	revoked, err := v.revocation.Check(context.Background(), chain[0], chain[1])
	switch {
	case err != nil:
		result.AddWarning(fmt.Sprintf("[%s] revocation not checked: %v", ErrCodeRevocationUnknown, err))
	case revoked:
		result.AddError(fmt.Sprintf("[%s] signer certificate was revoked", ErrCodeCertRevoked))
	default:
		result.NotRevoked = true
	}
}

func (v *Verifier) checkSignatureValue(result *VerificationResult, sig, signedInfo *etree.Element, cert *x509.Certificate) {
	method := ""
	if sm := childElement(signedInfo, "SignatureMethod"); sm != nil {
		method = sm.SelectAttrValue("Algorithm", "")
	}
	hash, ok := signatureHashes[method]
	if !ok {
		result.AddError(ErrUnsupportedAlgorithm("SignatureMethod", method).Error())
		return
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		result.AddError("certificate key is not RSA")
		return
	}

	value, err := base64.StdEncoding.DecodeString(compact(childText(sig, "SignatureValue")))
	if err != nil {
		result.AddError(fmt.Sprintf("SignatureValue is not base64: %v", err))
		return
	}

	canonical, err := Canonicalize(signedInfo)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to canonicalize SignedInfo: %v", err))
		return
	}

	h := hash.New()
	h.Write(canonical)
	if err := rsa.VerifyPKCS1v15(pub, hash, h.Sum(nil), value); err != nil {
		result.AddError(fmt.Sprintf("[%s] %v", ErrCodeInvalidSignature, err))
		return
	}
	result.SignatureValid = true
}

// findSignature prefers the Signature sibling of infNFe and falls back to any Signature in the document
func findSignature(inf *etree.Element) *etree.Element {
	if parent := inf.Parent(); parent != nil {
		if sig := childElement(parent, "Signature"); sig != nil {
			return sig
		}
	}
	root := inf
	for root.Parent() != nil {
		root = root.Parent()
	}
	return findElement(root, "Signature")
}

func findElement(e *etree.Element, local string) *etree.Element {
	if e == nil {
		return nil
	}
	if e.Tag == local {
		return e
	}
	for _, c := range e.ChildElements() {
		if found := findElement(c, local); found != nil {
			return found
		}
	}
	return nil
}

func childElement(e *etree.Element, local string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

func childText(e *etree.Element, local string) string {
	if c := childElement(e, local); c != nil {
		return c.Text()
	}
	return ""
}

// compact drops the line breaks issuers insert in base64 values
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
