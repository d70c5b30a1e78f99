// Package postgres implements the PostgreSQL dialect on top of github.com/lib/pq.
// Every grain is a schema.
package postgres

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Adaptor is the PostgreSQL dialect.
type Adaptor struct {
	dialect.Base
	Shadows dialect.ShadowPolicy
}

var _ dialect.Adaptor = (*Adaptor)(nil)

func New() *Adaptor {
	a := &Adaptor{Shadows: dialect.DefaultShadow}
	a.Base = dialect.Base{
		Dialect:  dialect.PostgreSQL,
		Quote:    quote,
		Ref:      ref,
		Registry: types(),
		NextVal:  nextval,
	}
	return a
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func ref(grain, name string) string {
	return quote(grain) + "." + quote(name)
}

func nextval(grain, seq string) string {
	return "nextval('" + strings.ReplaceAll(ref(grain, seq), "'", "''") + "'::regclass)"
}

func types() dialect.TypeRegistry {
	return dialect.TypeRegistry{
		score.KindInteger: {
			Keyword: dialect.Fixed("INTEGER"),
			Default: func(c catalog.ColumnInfo) (string, error) {
				if _, ok := dialect.SequenceOf(c.Default); ok {
					return "", fmt.Errorf("sequence default of %s needs its grain", c.Name)
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
		score.KindFloating: {Keyword: dialect.Fixed("DOUBLE PRECISION"), Default: dialect.Verbatim},
		score.KindBoolean:  {Keyword: dialect.Fixed("BOOLEAN"), Default: dialect.Verbatim},
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
				iso, err := dialect.DateParts(c.Default)
				if err != nil {
					return "", err
				}
				return "'" + iso + " 00:00:00'", nil
			},
		},
		score.KindBinary: {
			Keyword: dialect.Fixed("BYTEA"),
			Default: func(c catalog.ColumnInfo) (string, error) { return `'\x` + c.Default[2:] + `'::bytea`, nil },
		},
	}
}

func (a *Adaptor) Name() dialect.Name                { return dialect.PostgreSQL }
func (a *Adaptor) DriverName() string                { return "postgres" }
func (a *Adaptor) Types() dialect.TypeRegistry       { return a.Registry }
func (a *Adaptor) Shadow() dialect.ShadowPolicy      { return a.Shadows }
func (a *Adaptor) QuoteIdent(name string) string     { return quote(name) }
func (a *Adaptor) TableRef(grain, name string) string { return ref(grain, name) }
func (a *Adaptor) Placeholder(n int) string          { return fmt.Sprintf("$%d", n) }

// NullsFirst is false: PostgreSQL sorts NULLs last in ascending order.
func (a *Adaptor) NullsFirst() bool { return false }

func (a *Adaptor) TranslateDateLiteral(yyyymmdd string) (string, error) {
	iso, err := dialect.DateParts(yyyymmdd)
	if err != nil {
		return "", err
	}
	return "DATE '" + iso + "'", nil
}

func (a *Adaptor) PrepareConn(context.Context, *dialect.Conn) error { return nil }

func (a *Adaptor) count(ctx context.Context, c *dialect.Conn, q string, args ...any) (bool, error) {
	var n int
	if err := c.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return false, a.Introspection(q, err)
	}
	return n > 0, nil
}

func (a *Adaptor) SchemaExists(ctx context.Context, c *dialect.Conn, grain string) (bool, error) {
	return a.count(ctx, c, "SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = $1", grain)
}

func (a *Adaptor) CreateSchema(ctx context.Context, c *dialect.Conn, grain string) error {
	return a.Exec(ctx, c, dialect.OpCreateSchema, "CREATE SCHEMA "+quote(grain))
}

func (a *Adaptor) TableExists(ctx context.Context, c *dialect.Conn, grain, table string) (bool, error) {
	return a.count(ctx, c, `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'`, grain, table)
}

func (a *Adaptor) RenderSelect(sel score.Select) string {
	return a.RenderSelectWith(sel, nil)
}
