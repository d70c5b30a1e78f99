// Package mssql implements the Microsoft SQL Server dialect on top of
// github.com/microsoft/go-mssqldb. Every grain is a schema; identity columns are
// fed by a <table>_seq sequence through a named default constraint.
package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Adaptor is the SQL Server dialect. Default collations are case-insensitive.
type Adaptor struct {
	dialect.Base
}

var _ dialect.Adaptor = (*Adaptor)(nil)

func New() *Adaptor {
	return &Adaptor{Base: dialect.Base{
		Dialect:  dialect.MSSQL,
		Quote:    quote,
		Ref:      ref,
		Registry: types(),
		NextVal:  nextValueFor,
	}}
}

func quote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func ref(grain, name string) string {
	return quote(grain) + "." + quote(name)
}

func nextValueFor(grain, seq string) string {
	return "NEXT VALUE FOR " + ref(grain, seq)
}

func types() dialect.TypeRegistry {
	return dialect.TypeRegistry{
		score.KindInteger: {
			Keyword: dialect.Fixed("INT"),
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
					return "NVARCHAR(MAX)"
				}
				return fmt.Sprintf("NVARCHAR(%d)", c.Length)
			},
			Default: func(c catalog.ColumnInfo) (string, error) { return "N" + dialect.QuoteString(c.Default), nil },
		},
		score.KindFloating: {Keyword: dialect.Fixed("FLOAT"), Default: dialect.Verbatim},
		score.KindBoolean: {
			Keyword: dialect.Fixed("BIT"),
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
					return "DATETIMEOFFSET"
				}
				return "DATETIME2"
			},
			Default: func(c catalog.ColumnInfo) (string, error) {
				if c.Default == score.DefaultNow {
					return "GETDATE()", nil
				}
				if _, err := dialect.DateParts(c.Default); err != nil {
					return "", err
				}
				return "'" + c.Default + "'", nil
			},
		},
		score.KindBinary: {Keyword: dialect.Fixed("VARBINARY(MAX)"), Default: dialect.Verbatim},
	}
}

func (a *Adaptor) Name() dialect.Name                { return dialect.MSSQL }
func (a *Adaptor) DriverName() string                { return "sqlserver" }
func (a *Adaptor) Types() dialect.TypeRegistry       { return a.Registry }
func (a *Adaptor) Shadow() dialect.ShadowPolicy      { return dialect.NoShadow{} }
func (a *Adaptor) QuoteIdent(name string) string     { return quote(name) }
func (a *Adaptor) TableRef(grain, name string) string { return ref(grain, name) }
func (a *Adaptor) Placeholder(n int) string          { return fmt.Sprintf("@p%d", n) }
func (a *Adaptor) NullsFirst() bool                  { return true }

// TranslateDateLiteral uses the unseparated form, which SQL Server reads regardless of DATEFORMAT.
func (a *Adaptor) TranslateDateLiteral(yyyymmdd string) (string, error) {
	if _, err := dialect.DateParts(yyyymmdd); err != nil {
		return "", err
	}
	return "'" + yyyymmdd + "'", nil
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
	return a.count(ctx, c, "SELECT COUNT(*) FROM sys.schemas WHERE name = @p1", grain)
}

func (a *Adaptor) CreateSchema(ctx context.Context, c *dialect.Conn, grain string) error {
	return a.Exec(ctx, c, dialect.OpCreateSchema, "CREATE SCHEMA "+quote(grain))
}

func (a *Adaptor) TableExists(ctx context.Context, c *dialect.Conn, grain, table string) (bool, error) {
	return a.count(ctx, c, "SELECT COUNT(*) FROM sys.tables WHERE SCHEMA_NAME(schema_id) = @p1 AND name = @p2", grain, table)
}

func (a *Adaptor) RenderSelect(sel score.Select) string {
	return a.RenderSelectWith(sel, nil)
}
