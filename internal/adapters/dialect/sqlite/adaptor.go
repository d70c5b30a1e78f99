// Package sqlite implements the embedded, file-backed dialect on top of
// github.com/mattn/go-sqlite3. SQLite has no schemas, so grain objects are
// stored in the main database under "<grain>.<object>" names.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Adaptor is the SQLite dialect.
type Adaptor struct {
	dialect.Base
	// Shadows decides which indices get a COLLATE NOCASE twin.
	Shadows dialect.ShadowPolicy
}

// Ensure Adaptor implements dialect.Adaptor.
var _ dialect.Adaptor = (*Adaptor)(nil)

// New creates the SQLite adaptor.
func New() *Adaptor {
	a := &Adaptor{Shadows: dialect.DefaultShadow}
	a.Base = dialect.Base{
		Dialect:  dialect.SQLite,
		Quote:    quote,
		Ref:      ref,
		Registry: types(),
	}
	return a
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func physical(grain, name string) string {
	return grain + "." + name
}

func ref(grain, name string) string {
	return quote(physical(grain, name))
}

func types() dialect.TypeRegistry {
	return dialect.TypeRegistry{
		score.KindInteger: {
			Keyword: dialect.Fixed("INTEGER"),
			Default: func(c catalog.ColumnInfo) (string, error) {
				if _, ok := dialect.SequenceOf(c.Default); ok {
					return "", fmt.Errorf("sequence-linked default on %s: %w", c.Name, dialect.ErrUnsupported)
				}
				return c.Default, nil
			},
		},
		score.KindString: {
			Keyword: func(c catalog.ColumnInfo) string {
				if c.Unbounded {
					return "TEXT"
				}
				return fmt.Sprintf("VARCHAR(%d)", c.Length)
			},
			Default: func(c catalog.ColumnInfo) (string, error) { return dialect.QuoteString(c.Default), nil },
		},
		score.KindFloating: {Keyword: dialect.Fixed("REAL"), Default: dialect.Verbatim},
		score.KindBoolean: {
			Keyword: dialect.Fixed("BOOLEAN"),
			Default: func(c catalog.ColumnInfo) (string, error) {
				if c.Default == "true" {
					return "1", nil
				}
				return "0", nil
			},
		},
		score.KindDateTime: {
			Keyword: func(c catalog.ColumnInfo) string {
				if c.WithTimeZone {
					return "TIMESTAMPTZ"
				}
				return "TIMESTAMP"
			},
			Default: func(c catalog.ColumnInfo) (string, error) {
				if c.Default == score.DefaultNow {
					return "CURRENT_TIMESTAMP", nil
				}
				return translateDate(c.Default)
			},
		},
		score.KindBinary: {
			Keyword: dialect.Fixed("BLOB"),
			Default: func(c catalog.ColumnInfo) (string, error) { return "X'" + c.Default[2:] + "'", nil },
		},
	}
}

func translateDate(yyyymmdd string) (string, error) {
	iso, err := dialect.DateParts(yyyymmdd)
	if err != nil {
		return "", err
	}
	return "'" + iso + " 00:00:00'", nil
}

func (a *Adaptor) Name() dialect.Name                { return dialect.SQLite }
func (a *Adaptor) DriverName() string                { return "sqlite3" }
func (a *Adaptor) Types() dialect.TypeRegistry       { return a.Registry }
func (a *Adaptor) Shadow() dialect.ShadowPolicy      { return a.Shadows }
func (a *Adaptor) QuoteIdent(name string) string     { return quote(name) }
func (a *Adaptor) TableRef(grain, name string) string { return ref(grain, name) }
func (a *Adaptor) Placeholder(int) string            { return "?" }
func (a *Adaptor) NullsFirst() bool                  { return true }

func (a *Adaptor) TranslateDateLiteral(yyyymmdd string) (string, error) {
	return translateDate(yyyymmdd)
}

// PrepareConn enables foreign key enforcement, which SQLite keeps per connection.
func (a *Adaptor) PrepareConn(ctx context.Context, c *dialect.Conn) error {
	if _, err := c.Exec(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return a.Introspection("PRAGMA foreign_keys = ON", err)
	}
	return nil
}

func (a *Adaptor) SchemaExists(context.Context, *dialect.Conn, string) (bool, error) {
	return true, nil
}

func (a *Adaptor) CreateSchema(context.Context, *dialect.Conn, string) error {
	return nil
}

func (a *Adaptor) TableExists(ctx context.Context, c *dialect.Conn, grain, table string) (bool, error) {
	return a.masterExists(ctx, c, "table", physical(grain, table))
}

func (a *Adaptor) masterExists(ctx context.Context, c *dialect.Conn, kind, name string) (bool, error) {
	const q = "SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?"
	var n int
	if err := c.QueryRow(ctx, q, kind, name).Scan(&n); err != nil {
		return false, a.Introspection(q, err)
	}
	return n > 0, nil
}

func (a *Adaptor) RenderSelect(sel score.Select) string {
	return a.RenderSelectWith(sel, nil)
}
