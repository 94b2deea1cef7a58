// Package apperrors defines the closed error-kind taxonomy shared by every
// layer of the store: validation failures never touch the backend, NotFound
// and Duplicate are expected outcomes rather than failures, and Backend/
// Transaction/Performance classify everything that can go wrong underneath
// the storage manager.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Callers branch on Kind, never on message text.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindDuplicate
	KindBackend
	KindTransaction
	KindPerformance
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindBackend:
		return "backend"
	case KindTransaction:
		return "transaction"
	case KindPerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// Error is the single error type used throughout the store. Op names the
// failing operation (e.g. "storagemgr.CreateGame") for log correlation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation wraps err as a KindValidation Error.
func Validation(op string, err error) *Error { return New(KindValidation, op, err) }

// NotFound wraps err as a KindNotFound Error.
func NotFound(op string, err error) *Error { return New(KindNotFound, op, err) }

// Duplicate wraps err as a KindDuplicate Error.
func Duplicate(op string, err error) *Error { return New(KindDuplicate, op, err) }

// Backend wraps err as a KindBackend Error.
func Backend(op string, err error) *Error { return New(KindBackend, op, err) }

// Transaction wraps err as a KindTransaction Error.
func Transaction(op string, err error) *Error { return New(KindTransaction, op, err) }

// Performance wraps err as a KindPerformance Error.
func Performance(op string, err error) *Error { return New(KindPerformance, op, err) }

// Is reports whether err is an *Error of the given Kind, walking the chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
