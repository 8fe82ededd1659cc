package xml_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/rezonia/nfe-conferencia/internal/model"
	xmlparser "github.com/rezonia/nfe-conferencia/internal/parser/xml"
)

func loadTestFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestParse_NFeProc(t *testing.T) {
	inv, err := xmlparser.Parse(loadTestFile(t, "nfe_proc.xml"))
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, "35251111406411000106550030003560021710204842", inv.AccessKey)
	assert.Equal(t, "55", inv.Model)
	assert.Equal(t, "356002", inv.Number)
	assert.Equal(t, "3", inv.Series)
	assert.Equal(t, "2025-11-20", inv.IssueDate)
	assert.Equal(t, "11406411000106", inv.IssuerTaxID)
	assert.Equal(t, "DISTRIBUIDORA EXEMPLO LTDA", inv.IssuerName)
	assert.Equal(t, "MERCADO CENTRAL LTDA", inv.Recipient)
	assert.Equal(t, "1500.00", inv.TotalValue)

	require.Len(t, inv.Items, 2)
	assert.Equal(t, "7891000100103", inv.Items[0].Code)
	assert.Equal(t, "OLEO DE SOJA 900ML", inv.Items[0].Description)
	assert.True(t, inv.Items[0].Quantity.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "CX", inv.Items[0].Unit)
	assert.True(t, inv.Items[1].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "FD", inv.Items[1].Unit)
}

func TestParse_SingleItemQuantity(t *testing.T) {
	tests := []struct {
		name     string
		prod     string
		expected string
		unit     string
	}{
		{"decimal quantity", `<cProd>A</cProd><qCom>2.5</qCom><uCom>KG</uCom>`, "2.5", "KG"},
		{"missing quantity", `<cProd>A</cProd>`, "1", "UN"},
		{"non-numeric quantity", `<cProd>A</cProd><qCom>dois</qCom>`, "1", "UN"},
		{"empty unit", `<cProd>A</cProd><qCom>3</qCom><uCom></uCom>`, "3", "UN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `<NFe><infNFe><det nItem="1"><prod>` + tt.prod + `</prod></det></infNFe></NFe>`
			inv, err := xmlparser.Parse(doc)
			require.NoError(t, err)
			require.Len(t, inv.Items, 1)
			assert.True(t, inv.Items[0].Quantity.Equal(decimal.RequireFromString(tt.expected)),
				"expected %s, got %s", tt.expected, inv.Items[0].Quantity)
			assert.Equal(t, tt.unit, inv.Items[0].Unit)
		})
	}
}

func TestParse_PrefixedNamespace(t *testing.T) {
	doc := `<?xml version="1.0"?>
<nfe:NFe xmlns:nfe="http://www.portalfiscal.inf.br/nfe">
  <nfe:infNFe Id="NFe35251111406411000106550030003560021710204842">
    <nfe:ide><nfe:nNF>42</nfe:nNF><nfe:dEmi>2010-05-03</nfe:dEmi></nfe:ide>
    <nfe:emit><nfe:CNPJ>11406411000106</nfe:CNPJ></nfe:emit>
    <nfe:det><nfe:prod><nfe:cProd>X1</nfe:cProd></nfe:prod></nfe:det>
  </nfe:infNFe>
</nfe:NFe>`

	inv, err := xmlparser.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "42", inv.Number)
	assert.Equal(t, "2010-05-03", inv.IssueDate)
	assert.Equal(t, "11406411000106", inv.IssuerTaxID)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "X1", inv.Items[0].Code)
}

func TestParse_IssueDateFallback(t *testing.T) {
	doc := `<infNFe><ide><dhEmissao>2024-02-29T08:00:00</dhEmissao></ide></infNFe>`
	inv, err := xmlparser.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", inv.IssueDate)

	doc = `<infNFe><ide><dhEmi>2024-03-01T08:00:00-03:00</dhEmi><dEmi>1999-01-01</dEmi></ide></infNFe>`
	inv, err = xmlparser.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", inv.IssueDate)
}

func TestParse_FirstICMSTotAndDetWithoutProd(t *testing.T) {
	doc := `<infNFe>
  <det><imposto/></det>
  <det><prod><cProd>A</cProd></prod></det>
  <total><ICMSTot><vNF>10.00</vNF></ICMSTot></total>
  <extra><ICMSTot><vNF>99.00</vNF></ICMSTot></extra>
</infNFe>`

	inv, err := xmlparser.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "10.00", inv.TotalValue)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "A", inv.Items[0].Code)
}

func TestParse_NoInfNFe(t *testing.T) {
	inv, err := xmlparser.Parse(`<?xml version="1.0"?><retConsSitNFe><cStat>217</cStat></retConsSitNFe>`)
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.True(t, inv.Empty())
	assert.Empty(t, inv.Number)
	assert.Empty(t, inv.TotalValue)
	assert.NotNil(t, inv.Items)
	assert.Len(t, inv.Items, 0)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "  \n "},
		{"plain text", "not xml at all"},
		{"mismatched tags", "<NFe><infNFe></NFe></infNFe>"},
		{"unclosed root", "<NFe><infNFe>"},
		{"json", `{"data": "x"}`},
		{"two roots", "<a/><b/>"},
		{"second nfeProc", "<nfeProc></nfeProc><nfeProc></nfeProc>"},
		{"trailing text", "<nfeProc/> trailing junk"},
		{"leading text", "not xml <nfeProc><NFe><infNFe><ide><nNF>1</nNF></ide></infNFe></NFe></nfeProc>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inv *model.ParsedInvoice
			var err error
			require.NotPanics(t, func() {
				inv, err = xmlparser.Parse(tt.input)
			})
			require.Error(t, err)
			assert.Nil(t, inv)

			var parseErr *model.ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, "xml", parseErr.Field)
		})
	}
}

func TestParse_OutsideRootAllowed(t *testing.T) {
	doc := "\ufeff<?xml version=\"1.0\"?>\n<!-- exported -->\n" +
		"<nfeProc><NFe><infNFe><ide><nNF>7</nNF></ide></infNFe></NFe></nfeProc>\n\n"

	inv, err := xmlparser.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "7", inv.Number)
}

func TestParse_EmptyIsMarkedEmptyXML(t *testing.T) {
	_, err := xmlparser.Parse("")
	assert.ErrorIs(t, err, model.ErrEmptyXML)
}

func TestParse_Latin1(t *testing.T) {
	utf8Doc := `<?xml version="1.0" encoding="ISO-8859-1"?>` +
		`<infNFe><dest><xNome>JOÃO &amp; FILHOS</xNome></dest></infNFe>`

	encoded, err := charmap.ISO8859_1.NewEncoder().String(utf8Doc)
	require.NoError(t, err)

	inv, err := xmlparser.Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, "JOÃO & FILHOS", inv.Recipient)
}

func TestParseBytes(t *testing.T) {
	inv, err := xmlparser.ParseBytes([]byte(`<infNFe><ide><nNF>7</nNF></ide></infNFe>`))
	require.NoError(t, err)
	assert.Equal(t, "7", inv.Number)
}

func BenchmarkParse(b *testing.B) {
	data, err := os.ReadFile(filepath.Join("testdata", "nfe_proc.xml"))
	if err != nil {
		b.Fatal(err)
	}
	doc := string(data)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = xmlparser.Parse(doc)
	}
}
