// ABOUTME: Error taxonomy shared by every layer of the contacts engine
// ABOUTME: Sentinels are tagged onto detailed errors with errors.Join
package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidException = errors.New("invalid aggregation exception")
	ErrNotReady         = errors.New("provider not ready")
	ErrClosed           = errors.New("provider closed")
	ErrReadOnlyAccount  = errors.New("account is read-only")
)

// ValidationError tags msg as a validation failure.
func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(msg))
}

// ValidationErrorf is ValidationError with formatting.
func ValidationErrorf(format string, args ...any) error {
	return errors.Join(ErrValidation, fmt.Errorf(format, args...))
}

// InvalidExceptionError tags msg as a malformed aggregation exception, which is
// also a validation failure.
func InvalidExceptionError(msg string) error {
	return errors.Join(ErrInvalidException, ErrValidation, errors.New(msg))
}

// NotFoundError tags what as missing.
func NotFoundError(what string, id int64) error {
	return errors.Join(ErrNotFound, fmt.Errorf("%s %d not found", what, id))
}
