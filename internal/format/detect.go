// Package format sniffs the shape of provider response bodies.
package format

import (
	"bytes"
)

// Format represents a detected body format
type Format int

const (
	FormatUnknown Format = iota
	FormatXML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat detects the body format from its first significant byte
func DetectFormat(data []byte) Format {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return FormatUnknown
	}

	switch data[0] {
	case '<':
		return FormatXML
	case '{', '[':
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// IsJSONObject reports whether the body starts a JSON object
func IsJSONObject(data []byte) bool {
	data = bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	return len(data) > 0 && data[0] == '{'
}
