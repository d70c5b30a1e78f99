package migration

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
)

// ConfigurationError reports a grain that declares dialect-native SQL blocks.
// It aborts the whole run before any DDL is issued.
type ConfigurationError struct {
	Grain string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("grain %s: %s", e.Grain, e.Msg)
}

// ConnectionError reports that no connection could be obtained. It aborts the whole run.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "database connection: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// GrainError is a failure scoped to one grain; its message is persisted to the grain row.
type GrainError struct {
	Grain string
	Err   error
}

func (e *GrainError) Error() string {
	return fmt.Sprintf("grain %s: %v", e.Grain, e.Err)
}

func (e *GrainError) Unwrap() error { return e.Err }

// Introspection reports whether the grain failed while reading the catalog
// rather than while applying DDL.
func (e *GrainError) Introspection() bool {
	var de *dialect.Error
	return errors.As(e.Err, &de) && de.Introspection()
}

// ErrDowngrade is wrapped when the declared grain version is lower than the recorded one.
var ErrDowngrade = errors.New("declared version is lower than the installed one")
