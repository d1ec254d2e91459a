package guard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failure classes a guarded operation can
// surface. Transport layers translate kinds into responses in exactly one
// place; no other error shape escapes Execute.
type ErrorKind string

const (
	KindInvalidContext     ErrorKind = "invalid_context"
	KindAccessDenied       ErrorKind = "access_denied"
	KindRateLimited        ErrorKind = "rate_limited"
	KindInvalidResult      ErrorKind = "invalid_result"
	KindTransactionFailure ErrorKind = "transaction_failure"
)

// Error is the only error type Execute returns for envelope failures.
// Operation body errors pass through unchanged after rollback and audit.
type Error struct {
	Kind    ErrorKind
	Message string
	// Reasons lists every violated rule for KindInvalidResult.
	Reasons []string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, "; ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an envelope error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an envelope error wrapping an underlying cause.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind, reporting false for errors that did not
// originate from the envelope (operation body errors).
func KindOf(err error) (ErrorKind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}
