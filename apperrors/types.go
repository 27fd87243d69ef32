package apperrors

import (
	"strings"
)

// ErrorClass represents the category of an error.
type ErrorClass string

const (
	// ErrClassFileSystem represents filesystem-related errors. Fatal for a run.
	ErrClassFileSystem ErrorClass = "FILESYSTEM"
	// ErrClassParsing represents record parsing errors. Recovered per record.
	ErrClassParsing ErrorClass = "PARSING"
	// ErrClassValidation represents field validation problems. Recovered per field.
	ErrClassValidation ErrorClass = "VALIDATION"
	// ErrClassDatabase represents staging or destination store errors.
	ErrClassDatabase ErrorClass = "DATABASE"
	// ErrClassSchema represents a destination schema contract mismatch.
	ErrClassSchema ErrorClass = "SCHEMA"
	// ErrClassUnknown represents unknown or unclassified errors.
	ErrClassUnknown ErrorClass = "UNKNOWN"
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Class represents the category of the error
	Class ErrorClass
	// Operation describes the operation that failed
	Operation string
	// MessageFor identifies the entity on which the operation failed
	MessageFor string
	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	var bld strings.Builder
	bld.WriteRune('[')
	bld.WriteString(string(e.Class))
	bld.WriteRune(']')

	if e.Operation != "" {
		bld.WriteRune(' ')
		bld.WriteString(e.Operation)
	}

	if e.MessageFor != "" {
		bld.WriteString(" for: ")
		bld.WriteString(e.MessageFor)
	}

	if e.Err != nil {
		bld.WriteString(" Error: ")
		bld.WriteString(e.Err.Error())
	}
	return bld.String()
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}
