// Package errs defines the error kinds surfaced by the store, the node
// repository and the link index.
//
// Every public operation returns an *Error. Callers test the kind with
// errors.Is against the sentinel values:
//
//	if errors.Is(err, errs.ErrNotFound) { ... }
package errs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindCyclicMove
	KindStoreUnavailable
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation error"
	case KindCyclicMove:
		return "cyclic move"
	case KindStoreUnavailable:
		return "store unavailable"
	case KindSerialization:
		return "serialization error"
	default:
		return "unknown error"
	}
}

// Error is a classified error. Op names the operation that failed,
// e.g. "nodes.Update".
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is regardless of Op and Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrCyclicMove       = &Error{Kind: KindCyclicMove}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrSerialization    = &Error{Kind: KindSerialization}
)

// E wraps err with a kind.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FromStore classifies an error coming out of the database layer.
// An *Error already in the chain is returned unchanged.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return E(KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return E(KindStoreUnavailable, op, err)
	case isJSONError(err):
		return E(KindSerialization, op, err)
	case IsConstraint(err):
		return E(KindValidation, op, err)
	}
	return E(KindStoreUnavailable, op, err)
}

// IsConstraint reports whether err is a SQLite constraint violation.
func IsConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func isJSONError(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		unsupType *json.UnsupportedTypeError
		unsupVal  *json.UnsupportedValueError
		marshaler *json.MarshalerError
	)
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.As(err, &unsupType) || errors.As(err, &unsupVal) ||
		errors.As(err, &marshaler)
}
