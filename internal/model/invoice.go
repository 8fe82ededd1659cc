package model

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Placeholder values shown until the provider answers
const (
	PendingValue     = "A consultar"
	StatusDecoded    = "Chave decodificada"
	StatusQueried    = "Consultada"
	StatusXMLParsed  = "XML processado"
	StatusFailed     = "Falha na consulta"
	DefaultUnit      = "UN"
	NoInfoAvailable  = "Sem informações disponíveis"
	QueryFailedLabel = "Falha na consulta"
)

// AccessKey holds the structural fields of a validated 44-digit NFe access key
type AccessKey struct {
	Raw          string `json:"chave"`
	UFCode       string `json:"uf_codigo"`
	UF           string `json:"uf"`
	Year         string `json:"ano"`
	Month        string `json:"mes"`
	IssuerTaxID  string `json:"cnpj_emitente"`
	Model        string `json:"modelo"`
	Series       string `json:"serie"`
	Number       string `json:"numero"`
	EmissionType string `json:"tipo_emissao"`
	NumericCode  string `json:"codigo_numerico"`
	CheckDigit   string `json:"digito_verificador"`
	IssuePeriod  string `json:"periodo_emissao"`
	PeriodValid  bool   `json:"periodo_valido"`
}

// InvoiceHeader is populated from the access key first and refined by the provider XML
type InvoiceHeader struct {
	AccessKey   string `json:"chave_acesso"`
	Number      string `json:"numero"`
	Series      string `json:"serie"`
	IssuerTaxID string `json:"cnpj_emitente"`
	IssuerName  string `json:"emitente,omitempty"`
	UF          string `json:"uf"`
	IssueDate   string `json:"data_emissao"`
	TotalValue  string `json:"valor_nota"`
	Recipient   string `json:"destinatario"`
	Status      string `json:"status"`
}

// Merge overwrites header fields with the non-empty values of a parsed invoice.
// Fields missing from the XML keep their current value.
func (h *InvoiceHeader) Merge(p *ParsedInvoice) {
	if p == nil {
		return
	}
	setIfPresent(&h.Number, p.Number)
	setIfPresent(&h.Series, p.Series)
	setIfPresent(&h.IssueDate, p.IssueDate)
	setIfPresent(&h.IssuerTaxID, p.IssuerTaxID)
	setIfPresent(&h.IssuerName, p.IssuerName)
	setIfPresent(&h.Recipient, p.Recipient)
	setIfPresent(&h.TotalValue, p.TotalValue)
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ParsedInvoice is the normalized content of an NFe XML document
type ParsedInvoice struct {
	AccessKey   string     `json:"chave_acesso,omitempty"`
	Model       string     `json:"modelo,omitempty"`
	Number      string     `json:"numero"`
	Series      string     `json:"serie"`
	IssueDate   string     `json:"data_emissao"`
	IssuerTaxID string     `json:"cnpj_emitente"`
	IssuerName  string     `json:"emitente,omitempty"`
	Recipient   string     `json:"destinatario"`
	TotalValue  string     `json:"valor_nota"`
	Items       []LineItem `json:"itens"`
}

// Empty reports whether no field was extracted
func (p *ParsedInvoice) Empty() bool {
	return p.Number == "" && p.Series == "" && p.IssueDate == "" && p.IssuerTaxID == "" &&
		p.Recipient == "" && p.TotalValue == "" && len(p.Items) == 0
}

// LineItem is one product line of an invoice
type LineItem struct {
	Code        string          `json:"codigo"`
	Description string          `json:"descricao"`
	Quantity    decimal.Decimal `json:"quantidade"`
	Unit        string          `json:"unidade"`
	Placeholder bool            `json:"placeholder,omitempty"`
}

// PlaceholderItem builds the synthetic line used when no source yields items
func PlaceholderItem(description string) LineItem {
	return LineItem{
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		Unit:        DefaultUnit,
		Placeholder: true,
	}
}

// PayloadKind tags the shape of a provider answer
type PayloadKind string

const (
	PayloadEmpty PayloadKind = "empty"
	PayloadJSON  PayloadKind = "json"
)

// ProviderPayload is the provider's JSON answer to a key registration.
// It is decoded once at the transport boundary; Raw is always valid JSON or nil.
type ProviderPayload struct {
	Kind PayloadKind     `json:"kind"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// NewProviderPayload wraps a response body, tagging it empty when it is not valid JSON
func NewProviderPayload(body []byte) ProviderPayload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return ProviderPayload{Kind: PayloadEmpty}
	}
	return ProviderPayload{Kind: PayloadJSON, Raw: json.RawMessage(trimmed)}
}

// Session carries the operator context of one interactive action
type Session struct {
	Operator string `json:"usuario"`
	Polo     string `json:"polo"`
}
