package conferencelib

import (
	"io"

	"github.com/rezonia/nfe-conferencia/internal/accesskey"
	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/normalizer"
	xmlparser "github.com/rezonia/nfe-conferencia/internal/parser/xml"
)

// CleanKey removes the whitespace of a key copied from a DANFE
func CleanKey(input string) string {
	return accesskey.Clean(input)
}

// ValidateKey checks length and digits. It returns a *KeyError.
func ValidateKey(key string) error {
	return accesskey.Validate(key)
}

// DecodeKey builds the offline header of a valid key
func DecodeKey(key string) (InvoiceHeader, error) {
	key = accesskey.Clean(key)
	if err := accesskey.Validate(key); err != nil {
		return InvoiceHeader{}, err
	}
	return accesskey.Decode(key), nil
}

// ParseKey splits a key into all of its structural fields
func ParseKey(key string) (AccessKey, error) {
	return accesskey.Parse(accesskey.Clean(key))
}

// ParseXML parses an NFe or nfeProc document
func ParseXML(r io.Reader) (*ParsedInvoice, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError("xml", "failed to read input", err)
	}
	return xmlparser.ParseBytes(data)
}

// NormalizeJSON turns a provider JSON body into line items, or a single placeholder
func NormalizeJSON(body []byte) []LineItem {
	return normalizer.Normalize(model.NewProviderPayload(body))
}
