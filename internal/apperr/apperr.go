package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a stable, machine-readable error category. Callers switch on the
// kind; the message is for humans and may change.
type Kind string

const (
	KindValidation    Kind = "validation_failed"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindNotFound      Kind = "not_found"
	KindForbidden     Kind = "forbidden"
	KindStorageIO     Kind = "storage_io"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, never exposed to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

var (
	ErrNotFound  = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict  = &Error{Kind: KindConflict, Message: "conflict"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// StorageIO wraps a filesystem failure (disk full, permission denied, missing
// blob) so it surfaces with a stable kind instead of a raw os error.
func StorageIO(message string, err error) *Error {
	return Wrap(KindStorageIO, message, err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// ValidationError carries every violation found, not just the first one.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, ", ")
}

// QuotaExceededError reports the user's quota state at rejection time.
type QuotaExceededError struct {
	Used      int64
	Limit     int64
	Requested int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage limit exceeded: used %d of %d bytes, requested %d more", e.Used, e.Limit, e.Requested)
}

// KindOf classifies any error into the taxonomy. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return KindQuotaExceeded
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	return KindInternal
}
