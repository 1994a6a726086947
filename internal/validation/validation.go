// Package validation defines the structured, fatal errors raised by the
// deviation engine. Any of these aborts the whole run; no partial analysis is
// ever returned alongside one.
package validation

import (
	"errors"
	"fmt"
)

// Code identifies the invariant that was violated.
type Code string

const (
	CodeInvalidRoom          Code = "INVALID_ROOM"
	CodeInvalidPerimeter     Code = "INVALID_PERIMETER"
	CodeHeightExceedsCeiling Code = "HEIGHT_EXCEEDS_CEILING"
	CodeMissingDimensions    Code = "MISSING_DIMENSIONS"
	CodeInvalidQuantity      Code = "INVALID_QUANTITY"
	CodeInvalidConfidence    Code = "INVALID_CONFIDENCE"
)

// Error is a fatal validation failure.
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("validation: %s: %s: %s", e.Code, e.Field, e.Message)
}

// New returns an *Error with a formatted message.
func New(code Code, field, format string, args ...any) *Error {
	return &Error{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
