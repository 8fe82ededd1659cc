package conferencelib_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-conferencia/pkg/conferencelib"
)

const sampleKey = "35251111406411000106550030003560021710204842"

func fixture(t testing.TB) []byte {
	t.Helper()
	data, err := os.ReadFile("../../internal/parser/xml/testdata/nfe_proc.xml")
	require.NoError(t, err)
	return data
}

// provider answers registrations with 200 and serves the fixture XML
func provider(t testing.TB, xml []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/fd/add/"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status": "OK", "itens": [{"codigo": "J1", "descricao": "Item JSON", "quantidade": 1}]}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/fd/get/xml/"):
			w.Header().Set("Content-Type", "application/xml")
			w.Write(xml)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProcessor(t testing.TB, url string) *conferencelib.Processor {
	opts := conferencelib.DefaultOptions()
	opts.ProviderURL = url
	opts.VerifySignatures = false
	return conferencelib.NewProcessor(opts)
}

func TestNewDefaultProcessor(t *testing.T) {
	proc := conferencelib.NewDefaultProcessor()
	require.NotNil(t, proc)
}

func TestDefaultOptions(t *testing.T) {
	opts := conferencelib.DefaultOptions()
	assert.Equal(t, "https://api.meudanfe.com.br/v2", opts.ProviderURL)
	assert.True(t, opts.VerifySignatures)
	assert.Positive(t, opts.RegisterTimeout)
	assert.Positive(t, opts.FetchTimeout)
}

func TestDecodeKey(t *testing.T) {
	h, err := conferencelib.DecodeKey("3525 1111 4064 1100 0106 5500 3000 3560 0217 1020 4842")
	require.NoError(t, err)
	assert.Equal(t, sampleKey, h.AccessKey)
	assert.Equal(t, "000356002", h.Number)
	assert.Equal(t, conferencelib.StatusDecoded, h.Status)

	_, err = conferencelib.DecodeKey("123")
	var keyErr *conferencelib.KeyError
	require.ErrorAs(t, err, &keyErr)
	assert.ErrorIs(t, err, conferencelib.ErrWrongLength)

	_, err = conferencelib.DecodeKey(strings.Repeat("a", 44))
	assert.ErrorIs(t, err, conferencelib.ErrNonDigit)
}

func TestParseKey(t *testing.T) {
	k, err := conferencelib.ParseKey(sampleKey)
	require.NoError(t, err)
	assert.Equal(t, "SP", k.UF)
	assert.Equal(t, "55", k.Model)
	assert.Equal(t, "003", k.Series)
}

func TestParseXML(t *testing.T) {
	inv, err := conferencelib.ParseXML(bytes.NewReader(fixture(t)))
	require.NoError(t, err)
	assert.Equal(t, "356002", inv.Number)
	assert.Equal(t, "MERCADO CENTRAL LTDA", inv.Recipient)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "OLEO DE SOJA 900ML", inv.Items[0].Description)
}

func TestNormalizeJSON(t *testing.T) {
	items := conferencelib.NormalizeJSON([]byte(`{"produtos": [{"codigo": "A1", "descricao": "Cimento", "quantidade": 3}]}`))
	require.Len(t, items, 1)
	assert.Equal(t, "Cimento", items[0].Description)

	items = conferencelib.NormalizeJSON([]byte(`not json`))
	require.Len(t, items, 1)
	assert.True(t, items[0].Placeholder)
}

func TestProcessorLookup(t *testing.T) {
	srv := provider(t, fixture(t))
	proc := newProcessor(t, srv.URL)

	res := proc.Lookup(context.Background(), sampleKey)
	require.NoError(t, res.Error)
	assert.Equal(t, conferencelib.StatusXMLParsed, res.Header.Status)
	assert.Equal(t, "MERCADO CENTRAL LTDA", res.Header.Recipient)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "7891000100103", res.Items[0].Code)
}

func TestProcessorLookup_JSONFallback(t *testing.T) {
	srv := provider(t, []byte("<html>manutenção</html>"))
	proc := newProcessor(t, srv.URL)

	res := proc.Lookup(context.Background(), sampleKey)
	require.NoError(t, res.Error)
	assert.Equal(t, conferencelib.StatusQueried, res.Header.Status)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Item JSON", res.Items[0].Description)
	assert.NotEmpty(t, res.Warnings)
}

func TestProcessorLookupBatch(t *testing.T) {
	srv := provider(t, fixture(t))
	proc := newProcessor(t, srv.URL)

	results := proc.LookupBatch(context.Background(), []string{sampleKey, "123", sampleKey})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Error)
	assert.Error(t, results[1].Error)
	assert.NoError(t, results[2].Error)
}

func TestProcessorParse(t *testing.T) {
	proc := conferencelib.NewDefaultProcessor()

	res, err := proc.Parse(context.Background(), bytes.NewReader(fixture(t)))
	require.NoError(t, err)
	assert.Equal(t, sampleKey, res.Header.AccessKey)
	assert.Len(t, res.Items, 2)

	_, err = proc.Parse(context.Background(), strings.NewReader("plain text"))
	var parseErr *conferencelib.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestProcessorSave(t *testing.T) {
	srv := provider(t, fixture(t))
	st := conferencelib.NewMemoryStore()
	opts := conferencelib.DefaultOptions()
	opts.ProviderURL = srv.URL
	opts.Store = st
	proc := conferencelib.NewProcessor(opts)

	ctx := context.Background()
	res := proc.Lookup(ctx, sampleKey)
	require.NoError(t, res.Error)

	sess := conferencelib.Session{Operator: "joana", Polo: "Recife"}
	rows, err := proc.Save(ctx, sess, res, conferencelib.Conference{Operation: conferencelib.OperationDelivery, OK: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	stored, err := st.LoadAll(ctx, "Recife")
	require.NoError(t, err)
	assert.Equal(t, rows, stored)
}

func BenchmarkParse(b *testing.B) {
	proc := conferencelib.NewDefaultProcessor()
	data := fixture(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		proc.Parse(ctx, bytes.NewReader(data))
	}
}
