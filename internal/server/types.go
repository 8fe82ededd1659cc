package server

import (
	"errors"
	"time"

	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/processor"
	"github.com/rezonia/nfe-conferencia/internal/signature"
)

// LoginRequest is the body of the login endpoint
type LoginRequest struct {
	Username string `json:"usuario" binding:"required"`
	Password string `json:"senha" binding:"required"`
	Polo     string `json:"polo" binding:"required"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	Token   string        `json:"token"`
	Session model.Session `json:"sessao"`
}

// KeyResponse is the offline decoding of an access key
type KeyResponse struct {
	Key    model.AccessKey     `json:"chave"`
	Header model.InvoiceHeader `json:"cabecalho"`
}

// LookupRequest asks for a provider lookup
type LookupRequest struct {
	Key string `json:"chave" binding:"required"`
}

// LookupResponse is the reduced outcome of a lookup
type LookupResponse struct {
	Header    model.InvoiceHeader           `json:"cabecalho"`
	Items     []model.LineItem              `json:"itens"`
	Method    string                        `json:"metodo"`
	Cached    bool                          `json:"cache,omitempty"`
	Warnings  []string                      `json:"avisos,omitempty"`
	Trace     []meudanfe.TraceEntry         `json:"trace,omitempty"`
	Signature *signature.VerificationResult `json:"assinatura,omitempty"`
	Error     string                        `json:"erro,omitempty"`
	ErrorKind string                        `json:"tipo_erro,omitempty"`
}

func newLookupResponse(res *processor.Result) LookupResponse {
	out := LookupResponse{
		Header:    res.Header,
		Items:     res.Items,
		Method:    string(res.Method),
		Cached:    res.Cached,
		Warnings:  res.Warnings,
		Trace:     res.Trace,
		Signature: res.Signature,
	}
	if res.Error != nil {
		out.Error = res.Error.Error()
		var le *model.LookupError
		if errors.As(res.Error, &le) {
			out.ErrorKind = string(le.Kind)
		}
	}
	return out
}

// SaveRequest confirms a conference. Dates use dd/mm/yyyy.
type SaveRequest struct {
	Key        string `json:"chave" binding:"required"`
	Operation  string `json:"operacao" binding:"required"`
	LoadDate   string `json:"data_carga"`
	Load       string `json:"carga"`
	ReturnDate string `json:"data_devolucao"`
	OK         bool   `json:"ok"`
	Notes      string `json:"observacoes"`
}

// conference converts the request into the operator-entered fields
func (r SaveRequest) conference() (model.Conference, error) {
	conf := model.Conference{
		Operation: r.Operation,
		Load:      r.Load,
		OK:        r.OK,
		Notes:     r.Notes,
	}
	var err error
	if conf.LoadDate, err = parseDate(r.LoadDate); err != nil {
		return conf, err
	}
	if conf.ReturnDate, err = parseDate(r.ReturnDate); err != nil {
		return conf, err
	}
	return conf, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(model.DateLayout, s)
}

// SaveResponse lists the stored rows
type SaveResponse struct {
	ConferenceID string      `json:"conferencia_id"`
	Rows         []model.Row `json:"linhas"`
}

// PingResponse reports provider reachability
type PingResponse struct {
	Reachable bool                `json:"alcancavel"`
	Trace     meudanfe.TraceEntry `json:"trace"`
	Error     string              `json:"erro,omitempty"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
