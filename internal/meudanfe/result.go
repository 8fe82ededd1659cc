package meudanfe

import (
	"unicode/utf8"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// MaxTraceBody is the number of body bytes kept per trace entry
const MaxTraceBody = 500

// Trace tags recorded instead of an HTTP status
const (
	TagTimeout         = "TIMEOUT"
	TagConnectionError = "CONNECTION_ERROR"
)

// TraceEntry records one remote call for operator diagnostics
type TraceEntry struct {
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
}

// XMLDocument is the best-effort XML fetched after a successful registration
type XMLDocument struct {
	Raw        string               `json:"raw"`
	Invoice    *model.ParsedInvoice `json:"invoice,omitempty"`
	ParseError error                `json:"-"`
}

// Parsed reports whether the XML was parsed without error
func (d *XMLDocument) Parsed() bool {
	return d != nil && d.ParseError == nil && d.Invoice != nil
}

// Result is the outcome of one lookup. Err is nil on success.
type Result struct {
	Payload  model.ProviderPayload `json:"payload"`
	XML      *XMLDocument          `json:"xml,omitempty"`
	Endpoint string                `json:"endpoint,omitempty"`
	Trace    []TraceEntry          `json:"trace"`
	Err      *model.LookupError    `json:"-"`
}

// Success reports whether the key registration succeeded
func (r *Result) Success() bool {
	return r.Err == nil
}

// Failure returns the lookup error as an error value, or nil
func (r *Result) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

func (r *Result) record(endpoint, status string, code int, body []byte) {
	r.Trace = append(r.Trace, TraceEntry{
		Endpoint:   endpoint,
		Status:     status,
		StatusCode: code,
		Body:       truncate(string(body), MaxTraceBody),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
