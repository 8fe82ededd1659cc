package signature

import (
	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Canonicalize renders an element in inclusive C14N 1.0 form.
// Namespace declarations inherited from ancestors are copied onto the element first,
// so a signed infNFe canonicalizes the same way inside or outside its document.
func Canonicalize(el *etree.Element) ([]byte, error) {
	return dsig.MakeC14N10RecCanonicalizer().Canonicalize(detach(el))
}

func detach(el *etree.Element) *etree.Element {
	cp := el.Copy()

	declared := make(map[string]bool)
	for _, a := range cp.Attr {
		if isNamespaceDecl(a) {
			declared[a.FullKey()] = true
		}
	}

	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) || declared[a.FullKey()] {
				continue
			}
			cp.CreateAttr(a.FullKey(), a.Value)
			declared[a.FullKey()] = true
		}
	}
	return cp
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}
