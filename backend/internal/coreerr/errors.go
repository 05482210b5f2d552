// Package coreerr defines the tagged error kinds the core surfaces, per the
// error-handling design: callers pattern-match on Kind rather than on error
// strings, and every failure becomes a stored status, an issue, or an audit
// entry rather than being dropped silently.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the core's named error categories.
type Kind string

const (
	InputRejected        Kind = "InputRejected"
	TenantUnknown        Kind = "TenantUnknown"
	TransientStorage     Kind = "TransientStorage"
	ProviderTimeout      Kind = "ProviderTimeout"
	ProviderRateLimit    Kind = "ProviderRateLimit"
	LLMOutputInvalid     Kind = "LLMOutputInvalid"
	LLMSuspicious        Kind = "LLMSuspicious"
	StateMachineViolation Kind = "StateMachineViolation"
	OptimisticConflict   Kind = "OptimisticConflict"
	BudgetExceeded       Kind = "BudgetExceeded"
	DropzoneWriteError   Kind = "DropzoneWriteError"
	NotFound             Kind = "NotFound"
)

// CoreError is a tagged error: a Kind plus a wrapped cause.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// Is reports whether target is a *CoreError with the same Kind, so that
// errors.Is(err, coreerr.New(coreerr.NotFound, "")) style checks work without
// callers constructing a Cause.
func (e *CoreError) Is(target error) bool {
	other, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a CoreError with no wrapped cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap builds a CoreError wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *CoreError.
func KindOf(err error) (Kind, bool) {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return "", false
	}
	return ce.Kind, true
}
