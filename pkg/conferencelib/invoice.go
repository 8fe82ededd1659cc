// Package conferencelib provides a public API for checking Brazilian NFe invoices.
//
// It exposes access-key decoding, NFe XML parsing, provider lookups and the
// conference row model used by the conferencia service.
//
// Example usage:
//
//	proc := conferencelib.NewProcessor(conferencelib.DefaultOptions())
//	res := proc.Lookup(ctx, "35251111406411000106550030003560021710204842")
//	if res.Error != nil {
//	    log.Fatal(res.Error)
//	}
//	fmt.Println(res.Header.Recipient, len(res.Items))
package conferencelib

import "github.com/rezonia/nfe-conferencia/internal/model"

// Re-export core types for public API
type (
	AccessKey     = model.AccessKey
	InvoiceHeader = model.InvoiceHeader
	ParsedInvoice = model.ParsedInvoice
	LineItem      = model.LineItem
	Row           = model.Row
	Conference    = model.Conference
	Session       = model.Session
)

// Re-export header status values
const (
	StatusDecoded   = model.StatusDecoded
	StatusQueried   = model.StatusQueried
	StatusXMLParsed = model.StatusXMLParsed
	StatusFailed    = model.StatusFailed
	PendingValue    = model.PendingValue
)

// Re-export conference operations
const (
	OperationDelivery = model.OperationDelivery
	OperationReturn   = model.OperationReturn
	OperationReentry  = model.OperationReentry
	OperationTransfer = model.OperationTransfer
)

// Re-export error types
type (
	KeyError    = model.KeyError
	LookupError = model.LookupError
	ParseError  = model.ParseError
)

// Re-export sentinel errors
var (
	ErrWrongLength = model.ErrWrongLength
	ErrNonDigit    = model.ErrNonDigit
)
