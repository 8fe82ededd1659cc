package meudanfe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/model"
)

const sampleKey = "35251111406411000106550030003560021710204842"

const sampleXML = `<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe"><NFe><infNFe Id="NFe35251111406411000106550030003560021710204842">` +
	`<ide><nNF>356002</nNF><serie>3</serie><dhEmi>2025-11-20T14:32:10-03:00</dhEmi></ide>` +
	`<dest><xNome>MERCADO CENTRAL</xNome></dest>` +
	`<det nItem="1"><prod><cProd>A1</cProd><xProd>Oleo</xProd><qCom>2.5</qCom><uCom>CX</uCom></prod></det>` +
	`<total><ICMSTot><vNF>300.00</vNF></ICMSTot></total></infNFe></NFe></nfeProc>`

// provider is a scripted fake of the lookup service
type provider struct {
	mu       sync.Mutex
	calls    []string
	headers  []http.Header
	register func(w http.ResponseWriter, r *http.Request)
	fetch    func(w http.ResponseWriter, r *http.Request)
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.calls = append(p.calls, r.Method+" "+r.URL.Path)
	p.headers = append(p.headers, r.Header.Clone())
	p.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/fd/add/") && p.register != nil:
		p.register(w, r)
	case strings.HasPrefix(r.URL.Path, "/fd/get/xml/") && p.fetch != nil:
		p.fetch(w, r)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("MeuDanfe API"))
	}
}

func (p *provider) fetchCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if strings.Contains(c, "/fd/get/xml/") {
			n++
		}
	}
	return n
}

func respond(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newServer(t *testing.T, p *provider) (*httptest.Server, meudanfe.Config) {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return srv, meudanfe.Config{BaseURL: srv.URL, Token: "secret-token"}
}

func TestLookup_SuccessWithXML(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{"status": "OK", "produtos": []}`),
		fetch:    respond(http.StatusOK, `{"data": "`+strings.ReplaceAll(sampleXML, `"`, `\"`)+`"}`),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success(), "unexpected failure: %v", res.Failure())
	assert.Nil(t, res.Failure())

	assert.Equal(t, model.PayloadJSON, res.Payload.Kind)
	assert.True(t, strings.HasSuffix(res.Endpoint, "/fd/add/"+sampleKey))

	require.NotNil(t, res.XML)
	require.True(t, res.XML.Parsed())
	assert.Equal(t, "356002", res.XML.Invoice.Number)
	assert.Equal(t, "MERCADO CENTRAL", res.XML.Invoice.Recipient)
	require.Len(t, res.XML.Invoice.Items, 1)

	require.Len(t, res.Trace, 2)
	assert.Equal(t, "200", res.Trace[0].Status)
	assert.Equal(t, "200", res.Trace[1].Status)
	assert.Equal(t, []string{"PUT /fd/add/" + sampleKey, "GET /fd/get/xml/" + sampleKey}, p.calls)
}

func TestLookup_Headers(t *testing.T) {
	p := &provider{
		register: respond(http.StatusCreated, `{}`),
		fetch:    respond(http.StatusNotFound, ``),
	}
	_, cfg := newServer(t, p)

	client := meudanfe.NewClient(meudanfe.WithUserAgent("conferencia-test"))
	res := client.Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())

	require.Len(t, p.headers, 2)
	for _, h := range p.headers {
		assert.Equal(t, "secret-token", h.Get("Api-Key"))
		assert.Equal(t, "Bearer secret-token", h.Get("Authorization"))
		assert.Equal(t, "application/json", h.Get("Content-Type"))
		assert.Equal(t, "conferencia-test", h.Get("User-Agent"))
	}
}

func TestLookup_EmptyDataIsSuccessWithParseMarker(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{"status": "OK"}`),
		fetch:    respond(http.StatusOK, `{"data": ""}`),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	require.NotNil(t, res.XML)
	assert.False(t, res.XML.Parsed())
	assert.Nil(t, res.XML.Invoice)
	require.Error(t, res.XML.ParseError)
	assert.ErrorIs(t, res.XML.ParseError, model.ErrEmptyXML)
	assert.Len(t, res.Trace, 2)
}

func TestLookup_RawXMLBody(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{}`),
		fetch:    respond(http.StatusOK, sampleXML),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	require.True(t, res.XML.Parsed())
	assert.Equal(t, "300.00", res.XML.Invoice.TotalValue)
}

func TestLookup_MalformedXMLIsStillSuccess(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{}`),
		fetch:    respond(http.StatusOK, `{"data": "<NFe><infNFe></NFe>"}`),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	require.NotNil(t, res.XML)

	var parseErr *model.ParseError
	assert.True(t, errors.As(res.XML.ParseError, &parseErr))
}

func TestLookup_FetchFailureDegrades(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{"itens": [{"codigo": "A"}]}`),
		fetch:    respond(http.StatusInternalServerError, `boom`),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	assert.Nil(t, res.XML)
	assert.Equal(t, model.PayloadJSON, res.Payload.Kind)
	require.Len(t, res.Trace, 2)
	assert.Equal(t, "500", res.Trace[1].Status)
	assert.Equal(t, "boom", res.Trace[1].Body)
}

func TestLookup_NonJSONRegisterBody(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `OK`),
		fetch:    respond(http.StatusNotFound, ``),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	assert.Equal(t, model.PayloadEmpty, res.Payload.Kind)
}

func TestLookup_RegisterStatusFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		kind    model.LookupErrorKind
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, model.LookupAuth, "invalid or expired token"},
		{"not found", http.StatusNotFound, model.LookupNotFound, "not found"},
		{"method not allowed", http.StatusMethodNotAllowed, model.LookupMethodNotAllowed, "method not allowed"},
		{"server error", http.StatusInternalServerError, model.LookupUnexpectedStatus, "unexpected response: 500"},
		{"accepted", http.StatusAccepted, model.LookupUnexpectedStatus, "unexpected response: 202"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &provider{
				register: respond(tt.status, `{"erro": "x"}`),
				fetch:    respond(http.StatusOK, sampleXML),
			}
			_, cfg := newServer(t, p)

			res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
			require.False(t, res.Success())
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.Equal(t, tt.status, res.Err.Status)
			assert.Contains(t, res.Err.Error(), tt.message)
			assert.False(t, res.Err.Transport())

			// Register failure ends the lookup: no fetch attempted
			assert.Equal(t, 0, p.fetchCalls())
			require.Len(t, res.Trace, 1)
			assert.Contains(t, res.Trace[0].Endpoint, "/fd/add/")
			assert.Nil(t, res.XML)
		})
	}
}

func TestLookup_Timeout(t *testing.T) {
	p := &provider{
		register: func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			w.WriteHeader(http.StatusOK)
		},
	}
	_, cfg := newServer(t, p)

	client := meudanfe.NewClient(meudanfe.WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	res := client.Lookup(context.Background(), sampleKey, cfg)
	require.False(t, res.Success())
	assert.Equal(t, model.LookupTimeout, res.Err.Kind)
	assert.Equal(t, "TIMEOUT", res.Err.Error())
	assert.True(t, res.Err.Transport())
	require.Len(t, res.Trace, 1)
	assert.Equal(t, meudanfe.TagTimeout, res.Trace[0].Status)
}

func TestLookup_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	cfg := meudanfe.Config{BaseURL: srv.URL, Token: "t"}
	srv.Close()

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.False(t, res.Success())
	assert.Equal(t, model.LookupConnection, res.Err.Kind)
	assert.Equal(t, "CONNECTION_ERROR", res.Err.Error())
	require.Len(t, res.Trace, 1)
	assert.Equal(t, meudanfe.TagConnectionError, res.Trace[0].Status)
}

func TestLookup_OtherTransportFault(t *testing.T) {
	cfg := meudanfe.Config{BaseURL: "bogus-scheme://provider", Token: "t"}

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.False(t, res.Success())
	assert.Equal(t, model.LookupTransport, res.Err.Kind)
	assert.NotEmpty(t, res.Err.Error())
	assert.Len(t, res.Trace, 1)
}

func TestLookup_TraceBodyTruncated(t *testing.T) {
	long := strings.Repeat("x", 2000)
	p := &provider{
		register: respond(http.StatusOK, long),
		fetch:    respond(http.StatusNotFound, ``),
	}
	_, cfg := newServer(t, p)

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	assert.Len(t, res.Trace[0].Body, meudanfe.MaxTraceBody)
}

func TestLookup_TrailingSlashBaseURL(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{}`),
		fetch:    respond(http.StatusNotFound, ``),
	}
	_, cfg := newServer(t, p)
	cfg.BaseURL += "/"

	res := meudanfe.NewClient().Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.Success())
	assert.Equal(t, "PUT /fd/add/"+sampleKey, p.calls[0])
}

func TestLookup_CustomParser(t *testing.T) {
	p := &provider{
		register: respond(http.StatusOK, `{}`),
		fetch:    respond(http.StatusOK, `<anything/>`),
	}
	_, cfg := newServer(t, p)

	var got string
	client := meudanfe.NewClient(meudanfe.WithParser(func(xmlText string) (*model.ParsedInvoice, error) {
		got = xmlText
		return &model.ParsedInvoice{Number: "99"}, nil
	}))
	res := client.Lookup(context.Background(), sampleKey, cfg)
	require.True(t, res.XML.Parsed())
	assert.Equal(t, "<anything/>", got)
	assert.Equal(t, "99", res.XML.Invoice.Number)
}

func TestPing(t *testing.T) {
	p := &provider{}
	_, cfg := newServer(t, p)

	entry, err := meudanfe.NewClient().Ping(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.Equal(t, "MeuDanfe API", entry.Body)
}

func TestPing_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	cfg := meudanfe.Config{BaseURL: srv.URL}
	srv.Close()

	entry, err := meudanfe.NewClient().Ping(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, meudanfe.TagConnectionError, entry.Status)

	var lookupErr *model.LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, model.LookupConnection, lookupErr.Kind)
}

func BenchmarkLookup(b *testing.B) {
	p := &provider{
		register: respond(http.StatusOK, `{}`),
		fetch:    respond(http.StatusOK, sampleXML),
	}
	srv := httptest.NewServer(p)
	defer srv.Close()
	cfg := meudanfe.Config{BaseURL: srv.URL, Token: "t"}
	client := meudanfe.NewClient()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.Lookup(context.Background(), sampleKey, cfg)
	}
}
