package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationResult_JSONSerialization(t *testing.T) {
	result := &VerificationResult{
		Valid:               true,
		SignatureFound:      true,
		ReferenceMatchesKey: true,
		DigestValid:         true,
		SignatureValid:      true,
		Reference:           "#NFe35251111406411000106550030003560021710204842",
		Signer: &SignerInfo{
			Name:         "DISTRIBUIDORA EXEMPLO LTDA",
			TaxID:        "11406411000106",
			SerialNumber: "1234567890",
			Issuer:       "AC SERASA RFB v5",
			ValidFrom:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			ValidTo:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Warnings: []string{"certificate expired"},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded VerificationResult
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, result.Valid, decoded.Valid)
	assert.Equal(t, result.DigestValid, decoded.DigestValid)
	assert.Equal(t, result.Reference, decoded.Reference)
	require.NotNil(t, decoded.Signer)
	assert.Equal(t, "11406411000106", decoded.Signer.TaxID)
	assert.Equal(t, result.Warnings, decoded.Warnings)
	assert.Contains(t, string(data), `"cnpj":"11406411000106"`)
}

func TestVerificationResult_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(&VerificationResult{})
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, "signer")
	assert.NotContains(t, s, "warnings")
	assert.NotContains(t, s, "errors")
	assert.NotContains(t, s, "cert_chain_valid")
}

func TestVerificationResult_AddError(t *testing.T) {
	result := NewVerificationResult()
	result.Valid = true

	result.AddError("digest mismatch")
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"digest mismatch"}, result.Errors)
}

func TestVerificationResult_ComputeValidity(t *testing.T) {
	tests := []struct {
		name     string
		result   VerificationResult
		expected bool
	}{
		{
			name:     "all checks pass",
			result:   VerificationResult{SignatureFound: true, DigestValid: true, SignatureValid: true},
			expected: true,
		},
		{
			name:     "digest fails",
			result:   VerificationResult{SignatureFound: true, SignatureValid: true},
			expected: false,
		},
		{
			name:     "signature fails",
			result:   VerificationResult{SignatureFound: true, DigestValid: true},
			expected: false,
		},
		{
			name:     "errors present",
			result:   VerificationResult{SignatureFound: true, DigestValid: true, SignatureValid: true, Errors: []string{"x"}},
			expected: false,
		},
		{
			name:     "warnings do not invalidate",
			result:   VerificationResult{SignatureFound: true, DigestValid: true, SignatureValid: true, Warnings: []string{"expired"}},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.result.ComputeValidity()
			assert.Equal(t, tt.expected, tt.result.Valid)
		})
	}
}

func TestVerificationResult_SetSigner(t *testing.T) {
	tests := []struct {
		name     string
		cn       string
		wantName string
		wantTax  string
	}{
		{"e-CNPJ", "MERCADO CENTRAL LTDA:01234567000189", "MERCADO CENTRAL LTDA", "01234567000189"},
		{"plain CN", "Fulano de Tal", "Fulano de Tal", ""},
		{"colon without CNPJ", "Empresa:ABC", "Empresa:ABC", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewVerificationResult()
			result.SetSigner(createTestCert(t, tt.cn))
			require.NotNil(t, result.Signer)
			assert.Equal(t, tt.wantName, result.Signer.Name)
			assert.Equal(t, tt.wantTax, result.Signer.TaxID)
			assert.Equal(t, "AC Teste", result.Signer.Issuer)
			assert.Equal(t, "ICP-Brasil", result.Signer.Organization)
		})
	}

	result := NewVerificationResult()
	result.SetSigner(nil)
	assert.Nil(t, result.Signer)
}

func TestVerificationResult_Notes(t *testing.T) {
	result := NewVerificationResult()
	result.AddError("digest mismatch")
	result.AddWarning("certificate expired")

	assert.Equal(t, []string{"assinatura: digest mismatch", "assinatura: certificate expired"}, result.Notes())
}

func TestSignatureError(t *testing.T) {
	err := NewSignatureError(ErrCodeInvalidSignature, "SignatureValue", "verification failed", nil)
	assert.Equal(t, "[INVALID_SIGNATURE] SignatureValue: verification failed", err.Error())

	assert.Equal(t, "[NO_SIGNATURE] no signature found in document", ErrNoSignature().Error())
	assert.Contains(t, ErrUnsupportedAlgorithm("DigestMethod", "urn:md5").Error(), "urn:md5")
}

func createTestCert(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := pkix.Name{CommonName: "AC Teste"}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"ICP-Brasil"}},
		Issuer:       issuer,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	parent := &x509.Certificate{SerialNumber: big.NewInt(1), Subject: issuer}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}
