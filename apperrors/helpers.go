package apperrors

import (
	"errors"
)

// Wrap creates a classified error.
func Wrap(class ErrorClass, operation string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	return &ClassifiedError{
		Class:     class,
		Operation: operation,
		Err:       err,
	}
}

// For marks the entity on which the operation failed.
func (e *ClassifiedError) For(entity string) *ClassifiedError {
	if e == nil {
		return nil
	}
	e.MessageFor = entity
	return e
}

// New creates a new classified error with a message.
func New(class ErrorClass, operation string, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Operation: operation,
		Err:       errors.New(message),
	}
}

// GetClass extracts the error class from an error.
func GetClass(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	return ErrClassUnknown
}

// IsClass reports whether err carries the given class.
func IsClass(err error, class ErrorClass) bool {
	return GetClass(err) == class
}
