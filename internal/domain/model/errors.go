package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Callers test them with errors.Is.
var (
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)

var kinds = []error{ //nolint:gochecknoglobals // fixed kind table
	ErrPreconditionFailed,
	ErrNotFound,
	ErrDuplicateEntry,
	ErrUnauthorized,
	ErrUpstreamUnavailable,
	ErrInvalidInput,
}

// Error carries the failing operation and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind builds an error of the given kind with a message.
func NewKind(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// WrapKind attaches a kind to an existing error.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap adds op context and keeps whatever kind err already has.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the innermost human readable message of err, without op prefixes.
func Message(err error) string {
	var e *Error
	for errors.As(err, &e) {
		if e.Err == nil {
			if e.Kind == nil {
				return e.Op
			}
			return e.Kind.Error()
		}
		err = e.Err
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
