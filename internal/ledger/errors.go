package ledger

import (
	"errors"
	"fmt"
)

// Code classifies why an operation was rejected.
type Code string

const (
	CodeNotFound          Code = "NotFound"
	CodeUnauthorized      Code = "Unauthorized"
	CodeInvalidInput      Code = "InvalidInput"
	CodeAlreadyListed     Code = "AlreadyListed"
	CodeNotListed         Code = "NotListed"
	CodeInsufficientFunds Code = "InsufficientFunds"
	CodeSelfPurchase      Code = "SelfPurchase"
	CodeInternal          Code = "Internal"
)

// Error is a rejected operation. Two errors match under errors.Is when
// their codes are equal, so the sentinels below work with wrapped detail.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput}
	ErrAlreadyListed     = &Error{Code: CodeAlreadyListed}
	ErrNotListed         = &Error{Code: CodeNotListed}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds}
	ErrSelfPurchase      = &Error{Code: CodeSelfPurchase}
)

// Errorf returns an error with the code of base and a formatted message.
func Errorf(base *Error, format string, args ...any) error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of err. Errors outside the taxonomy are Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
