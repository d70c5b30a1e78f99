// Package dialects builds the adaptor for a dialect name.
package dialects

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/mssql"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/mysql"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/postgres"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/sqlite"
)

// ErrUnsupportedDialect is returned for names no adaptor is registered under.
var ErrUnsupportedDialect = errors.New("unsupported dialect")

// New returns a fresh adaptor for name.
func New(name dialect.Name) (dialect.Adaptor, error) {
	switch name {
	case dialect.SQLite:
		return sqlite.New(), nil
	case dialect.PostgreSQL:
		return postgres.New(), nil
	case dialect.MySQL:
		return mysql.New(), nil
	case dialect.MSSQL:
		return mssql.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}

// Parse resolves a configured dialect spelling and builds its adaptor.
func Parse(s string) (dialect.Adaptor, error) {
	name, err := dialect.ParseName(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, s)
	}
	return New(name)
}
