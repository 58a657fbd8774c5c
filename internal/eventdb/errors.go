package eventdb

import (
	"errors"
	"fmt"
)

// Kind categorizes store errors.
type Kind string

const (
	// KindInvalidRecordType indicates a record's type does not match its
	// role in the batch.
	KindInvalidRecordType Kind = "INVALID_RECORD_TYPE"

	// KindFacetMismatch indicates a record belongs to another facet.
	KindFacetMismatch Kind = "FACET_MISMATCH"

	// KindTransactionTooLarge indicates the batch exceeds the backend's
	// per-transaction item limit.
	KindTransactionTooLarge Kind = "TRANSACTION_TOO_LARGE"

	// KindInvalidExpectedVersion indicates a negative expected version.
	KindInvalidExpectedVersion Kind = "INVALID_EXPECTED_VERSION"

	// KindConcurrencyConflict indicates the stored state version did not
	// match the expected version.
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"

	// KindBackendUnavailable indicates a transient backend failure.
	KindBackendUnavailable Kind = "BACKEND_UNAVAILABLE"

	// KindBackendRejected indicates any other backend failure.
	KindBackendRejected Kind = "BACKEND_REJECTED"
)

// Retryable reports whether a request failing with this kind may succeed
// if issued again: after re-reading state for conflicts, after backoff for
// unavailability.
func (k Kind) Retryable() bool {
	return k == KindConcurrencyConflict || k == KindBackendUnavailable
}

// Error is returned by every DB operation.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Err is the backend error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the backend error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so the package sentinels
// work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidRecordType      = &Error{Kind: KindInvalidRecordType}
	ErrFacetMismatch          = &Error{Kind: KindFacetMismatch}
	ErrTransactionTooLarge    = &Error{Kind: KindTransactionTooLarge}
	ErrInvalidExpectedVersion = &Error{Kind: KindInvalidExpectedVersion}
	ErrConcurrencyConflict    = &Error{Kind: KindConcurrencyConflict}
	ErrBackendUnavailable     = &Error{Kind: KindBackendUnavailable}
	ErrBackendRejected        = &Error{Kind: KindBackendRejected}
)

// KindOf returns the Kind of err, or "" if err is not a store error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a store error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsConflict reports whether err is a concurrency conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}

// IsRetryable reports whether err may succeed if the caller retries.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
