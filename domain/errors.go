package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeInvalidMove  ErrorCode = "INVALID_MOVE"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeStorage      ErrorCode = "STORAGE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrCategoryNotFound = NewError(ErrCodeNotFound, "category not found")
	ErrCategoryExists   = NewError(ErrCodeConflict, "category already exists")
	ErrInvalidMove      = NewError(ErrCodeInvalidMove, "move would create a cycle")
	ErrNotFeaturable    = NewError(ErrCodeInvalid, "category has too few items to be featured")
	ErrConcurrentChange = NewError(ErrCodeConflict, "category changed since it was read")
	ErrUnauthorized     = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden        = NewError(ErrCodeForbidden, "forbidden")
	ErrInvalidPayload   = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CategoryNotFound reports a missing category while keeping errors.Is(err, ErrCategoryNotFound) true.
func CategoryNotFound(id string) error {
	return WrapError(ErrCodeNotFound, fmt.Sprintf("category %q", id), ErrCategoryNotFound)
}

// StorageError classifies a failed read or commit. Errors that already carry a
// domain code keep it and only gain the operation context.
func StorageError(operation, categoryID string, err error) error {
	if err == nil {
		return nil
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		return fmt.Errorf("%s %s: %w", operation, categoryID, err)
	}
	return WrapError(ErrCodeStorage, fmt.Sprintf("%s %s", operation, categoryID), err)
}
