// Package xml parses NFe documents returned by the invoice provider.
//
// Elements are matched by local name only, so documents with a default
// namespace, a prefixed namespace or no namespace at all parse the same way.
package xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/nfe-conferencia/internal/decimal"
	"github.com/rezonia/nfe-conferencia/internal/model"
)

// Issue date elements, in order of preference
var issueDateTags = []string{"dhEmi", "dEmi", "dhEmissao"}

// Parse parses an NFe XML document.
// A well-formed document without an infNFe element yields an empty invoice and no error.
func Parse(xmlText string) (*model.ParsedInvoice, error) {
	xmlText = strings.TrimPrefix(xmlText, "\ufeff")
	if strings.TrimSpace(xmlText) == "" {
		return nil, model.NewParseError("xml", "document is empty", model.ErrEmptyXML)
	}
	if err := checkWellFormed(xmlText); err != nil {
		return nil, model.NewParseError("xml", "malformed XML", err)
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromString(xmlText); err != nil {
		return nil, model.NewParseError("xml", "failed to parse XML", err)
	}

	result := &model.ParsedInvoice{Items: []model.LineItem{}}

	inf := findFirst(doc.Root(), "infNFe")
	if inf == nil {
		return result, nil
	}

	result.AccessKey = strings.TrimPrefix(inf.SelectAttrValue("Id", ""), "NFe")

	if ide := child(inf, "ide"); ide != nil {
		result.Number = childText(ide, "nNF")
		result.Series = childText(ide, "serie")
		result.Model = childText(ide, "mod")
		result.IssueDate = issueDate(ide)
	}

	if emit := child(inf, "emit"); emit != nil {
		result.IssuerTaxID = childText(emit, "CNPJ")
		result.IssuerName = childText(emit, "xNome")
	}

	if dest := child(inf, "dest"); dest != nil {
		result.Recipient = childText(dest, "xNome")
	}

	if tot := findFirst(inf, "ICMSTot"); tot != nil {
		result.TotalValue = childText(tot, "vNF")
	}

	for _, det := range findAll(inf, "det") {
		prod := child(det, "prod")
		if prod == nil {
			continue
		}
		result.Items = append(result.Items, convertProd(prod))
	}

	return result, nil
}

// ParseBytes parses an NFe XML document held in memory
func ParseBytes(content []byte) (*model.ParsedInvoice, error) {
	return Parse(string(content))
}

func convertProd(prod *etree.Element) model.LineItem {
	unit := childText(prod, "uCom")
	if unit == "" {
		unit = model.DefaultUnit
	}
	return model.LineItem{
		Code:        childText(prod, "cProd"),
		Description: childText(prod, "xProd"),
		Quantity:    decimal.ParseQuantity(childText(prod, "qCom")),
		Unit:        unit,
	}
}

func issueDate(ide *etree.Element) string {
	for _, tag := range issueDateTags {
		v := childText(ide, tag)
		if v == "" {
			continue
		}
		if len(v) > 10 {
			v = v[:10]
		}
		return v
	}
	return ""
}

// checkWellFormed runs a strict token pass. etree reads raw tokens and does not
// match end tags against start tags.
func checkWellFormed(xmlText string) error {
	dec := xml.NewDecoder(strings.NewReader(xmlText))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	roots := 0
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return fmt.Errorf("second root element <%s>", t.Name.Local)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return errors.New("text outside the root element")
			}
		}
	}

	if roots == 0 {
		return errors.New("no root element")
	}
	return nil
}

// findFirst returns the first element, in document order, whose local name matches
func findFirst(e *etree.Element, local string) *etree.Element {
	if e == nil {
		return nil
	}
	if e.Tag == local {
		return e
	}
	for _, c := range e.ChildElements() {
		if found := findFirst(c, local); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant whose local name matches
func findAll(e *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if c.Tag == local {
			out = append(out, c)
		}
		out = append(out, findAll(c, local)...)
	}
	return out
}

func child(e *etree.Element, local string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

func childText(e *etree.Element, local string) string {
	c := child(e, local)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}
