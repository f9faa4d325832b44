// internal/apperrors/errors.go
package apperrors

import "fmt"

// ValidationError is a caller-fixable request problem (channel/template
// mismatch, missing destination address). Nothing is persisted for these.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError covers unknown contacts and template versions. Nothing is
// persisted for these either.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ProviderError wraps a delivery failure. The message row is already persisted
// as failed by the time this reaches the caller; retrying is the caller's call,
// with the same idempotency key.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProvider(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}
