// Package errors provides structured errors and failure isolation for the
// retrieval engine: error codes with categories, and the circuit breaker
// guarding the external embedding/rerank provider.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies an error by subsystem.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryStore      Category = "store"
	CategoryProvider   Category = "provider"
	CategoryInternal   Category = "internal"
)

// Error codes used across the engine.
const (
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeTenantRequired  = "ERR_TENANT_REQUIRED"
	ErrCodeStoreQuery      = "ERR_STORE_QUERY"
	ErrCodeProviderEmbed   = "ERR_PROVIDER_EMBED"
	ErrCodeProviderRerank  = "ERR_PROVIDER_RERANK"
	ErrCodeProviderTimeout = "ERR_PROVIDER_TIMEOUT"
	ErrCodeInternal        = "ERR_INTERNAL"
)

// MosaicError is the structured error type for the retrieval engine.
type MosaicError struct {
	// Code is the unique error code (e.g., "ERR_PROVIDER_EMBED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (validation, store, provider, internal).
	Category Category

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *MosaicError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MosaicError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *MosaicError) Is(target error) bool {
	if t, ok := target.(*MosaicError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new MosaicError with the given code and message.
func New(code, message string, cause error) *MosaicError {
	return &MosaicError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MosaicError from an existing error.
func Wrap(code string, err error) *MosaicError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *MosaicError {
	return New(ErrCodeInvalidInput, message, cause)
}

// StoreError creates a document-store-related error.
func StoreError(message string, cause error) *MosaicError {
	return New(ErrCodeStoreQuery, message, cause)
}

// ProviderError creates an external-provider-related error.
// Provider errors are retryable across calls; the circuit breaker owns
// the retry timing.
func ProviderError(code, message string, cause error) *MosaicError {
	return New(code, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var me *MosaicError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

func categoryFromCode(code string) Category {
	switch code {
	case ErrCodeInvalidInput, ErrCodeTenantRequired:
		return CategoryValidation
	case ErrCodeStoreQuery:
		return CategoryStore
	case ErrCodeProviderEmbed, ErrCodeProviderRerank, ErrCodeProviderTimeout:
		return CategoryProvider
	default:
		return CategoryInternal
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderEmbed, ErrCodeProviderRerank, ErrCodeProviderTimeout:
		return true
	default:
		return false
	}
}
