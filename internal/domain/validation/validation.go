// Package validation holds the error type shared by domain packages for
// rejected input.
package validation

import "fmt"

// Error reports a request field that failed validation.
type Error struct {
	Field   string
	Message string
}

// New returns a validation error for the given field.
func New(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// Newf is like New but formats the message.
func Newf(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Message
}
