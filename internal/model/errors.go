package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed request. No state was changed.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid returns a ValidationError with the INVALID_INPUT code.
func Invalid(format string, args ...any) error {
	return &ValidationError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// UnknownKind returns a ValidationError for an unrecognized currency or task kind.
func UnknownKind(what, kind string) error {
	return &ValidationError{Code: ErrCodeUnknownKind, Message: fmt.Sprintf("unknown %s %q", what, kind)}
}

// NotFound returns a ValidationError for a reference to a missing item.
func NotFound(format string, args ...any) error {
	return &ValidationError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// PreconditionError reports that a checkout cannot be paid for. Nothing was deducted.
type PreconditionError struct {
	Currency  string `json:"currency"`
	Needed    int64  `json:"needed"`
	Available int64  `json:"available"`
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("insufficient %s: needed %d, available %d", e.Currency, e.Needed, e.Available)
}

// StoreError reports a failed external-store call. Applied is the number of
// operations of the same request that had already succeeded.
type StoreError struct {
	Op      string
	Applied int
	Err     error
}

func (e *StoreError) Error() string {
	if e.Applied > 0 {
		return fmt.Sprintf("store %s failed after %d applied operations: %v", e.Op, e.Applied, e.Err)
	}
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
