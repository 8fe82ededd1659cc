// Package accesskey validates and decodes 44-digit NFe access keys.
//
// Layout (0-indexed, half-open):
//
//	[0:2]   UF (IBGE code)
//	[2:4]   year (YY)
//	[4:6]   month (MM)
//	[6:20]  issuer CNPJ
//	[20:22] model (55 = NFe, 65 = NFCe)
//	[22:25] series
//	[25:34] invoice number
//	[34]    emission type
//	[35:43] numeric code
//	[43]    check digit
//
// The check digit is not verified.
package accesskey

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// Length is the fixed size of an access key
const Length = 44

// Validate rejects keys that are not exactly 44 decimal digits
func Validate(key string) error {
	if len(key) != Length {
		return model.NewKeyError(key, model.ErrWrongLength)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return model.NewKeyError(key, model.ErrNonDigit)
		}
	}
	return nil
}

// Clean strips whitespace from a typed or scanned key. DANFE prints keys in groups of four.
func Clean(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
}

// Decode builds the header fields derivable from a validated key.
// Fields only known after a lookup carry placeholder values.
func Decode(key string) model.InvoiceHeader {
	return model.InvoiceHeader{
		AccessKey:   key,
		Number:      key[25:34],
		Series:      key[22:25],
		IssuerTaxID: key[6:20],
		UF:          UFName(key[0:2]),
		IssueDate:   issuePeriod(key[2:4], key[4:6]),
		TotalValue:  model.PendingValue,
		Recipient:   model.PendingValue,
		Status:      model.StatusDecoded,
	}
}

// Parse validates a key and splits it into every structural field
func Parse(key string) (model.AccessKey, error) {
	if err := Validate(key); err != nil {
		return model.AccessKey{}, err
	}

	year, month := key[2:4], key[4:6]
	return model.AccessKey{
		Raw:          key,
		UFCode:       key[0:2],
		UF:           UFName(key[0:2]),
		Year:         year,
		Month:        month,
		IssuerTaxID:  key[6:20],
		Model:        key[20:22],
		Series:       key[22:25],
		Number:       key[25:34],
		EmissionType: key[34:35],
		NumericCode:  key[35:43],
		CheckDigit:   key[43:44],
		IssuePeriod:  issuePeriod(year, month),
		PeriodValid:  validMonth(month),
	}, nil
}

// issuePeriod renders "MM/20YY", or the raw "MM/YY" when the month is out of range
func issuePeriod(year, month string) string {
	if !validMonth(month) {
		return month + "/" + year
	}
	return month + "/20" + year
}

func validMonth(month string) bool {
	m, err := strconv.Atoi(month)
	return err == nil && m >= 1 && m <= 12
}
