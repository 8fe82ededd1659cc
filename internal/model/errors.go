package model

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by the typed errors below
var (
	ErrWrongLength = errors.New("access key must have exactly 44 characters")
	ErrNonDigit    = errors.New("access key must contain only digits")
	ErrEmptyXML    = errors.New("provider returned an empty XML document")
)

// KeyError reports a malformed access key. It is returned before any lookup is attempted.
type KeyError struct {
	Key    string
	Length int
	Cause  error
}

func (e *KeyError) Error() string {
	if errors.Is(e.Cause, ErrWrongLength) {
		return fmt.Sprintf("invalid access key: %v (got %d)", e.Cause, e.Length)
	}
	return fmt.Sprintf("invalid access key: %v", e.Cause)
}

func (e *KeyError) Unwrap() error {
	return e.Cause
}

// NewKeyError creates a new key error
func NewKeyError(key string, cause error) *KeyError {
	return &KeyError{
		Key:    key,
		Length: len(key),
		Cause:  cause,
	}
}

// LookupErrorKind classifies a failed provider lookup
type LookupErrorKind string

const (
	LookupAuth             LookupErrorKind = "auth"
	LookupNotFound         LookupErrorKind = "not_found"
	LookupMethodNotAllowed LookupErrorKind = "method_not_allowed"
	LookupUnexpectedStatus LookupErrorKind = "unexpected_status"
	LookupTimeout          LookupErrorKind = "timeout"
	LookupConnection       LookupErrorKind = "connection"
	LookupTransport        LookupErrorKind = "transport"
)

// LookupError is a protocol or transport failure of the invoice provider
type LookupError struct {
	Kind     LookupErrorKind
	Status   int
	Endpoint string
	Message  string
	Cause    error
}

func (e *LookupError) Error() string {
	return e.Message
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}

// Transport reports whether the failure happened below HTTP (no status received)
func (e *LookupError) Transport() bool {
	switch e.Kind {
	case LookupTimeout, LookupConnection, LookupTransport:
		return true
	default:
		return false
	}
}

// NewLookupError creates a new lookup error
func NewLookupError(kind LookupErrorKind, status int, endpoint, message string, cause error) *LookupError {
	return &LookupError{
		Kind:     kind,
		Status:   status,
		Endpoint: endpoint,
		Message:  message,
		Cause:    cause,
	}
}

// ParseError represents parsing errors of provider documents
type ParseError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(field, message string, cause error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
