package dialect

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported marks features a dialect cannot provide.
var ErrUnsupported = errors.New("not supported by dialect")

// Error is the single error type adaptors return for database failures.
type Error struct {
	Dialect Name
	Op      Op
	// Stmt is the statement or catalog query that failed, if any.
	Stmt string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Dialect, e.Op, e.Err)
	if e.Stmt != "" {
		msg += " [" + compact(e.Stmt) + "]"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Introspection reports whether the failure happened while reading the catalog.
func (e *Error) Introspection() bool { return e.Op == OpIntrospect }

// Wrap converts a driver error into *Error. A nil err yields nil.
func Wrap(d Name, op Op, stmt string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Dialect: d, Op: op, Stmt: stmt, Err: err}
}

// Unsupported builds the error returned for features a dialect lacks.
func Unsupported(d Name, op Op, what string) error {
	return &Error{Dialect: d, Op: op, Err: fmt.Errorf("%s: %w", what, ErrUnsupported)}
}

func compact(stmt string) string {
	s := strings.Join(strings.Fields(stmt), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
