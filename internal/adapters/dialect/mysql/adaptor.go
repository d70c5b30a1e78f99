// Package mysql implements the MySQL dialect on top of github.com/go-sql-driver/mysql.
// Every grain is a database; connections must be opened with parseTime=true.
package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Adaptor is the MySQL dialect. Default collations compare case-insensitively,
// so no shadow indices are built.
type Adaptor struct {
	dialect.Base
}

var _ dialect.Adaptor = (*Adaptor)(nil)

func New() *Adaptor {
	return &Adaptor{Base: dialect.Base{
		Dialect:  dialect.MySQL,
		Quote:    quote,
		Ref:      ref,
		Registry: types(),
	}}
}

func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func ref(grain, name string) string {
	return quote(grain) + "." + quote(name)
}

func types() dialect.TypeRegistry {
	return dialect.TypeRegistry{
		score.KindInteger: {
			Keyword: dialect.Fixed("INT"),
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
			Default: func(c catalog.ColumnInfo) (string, error) {
				if c.Unbounded {
					return "(" + dialect.QuoteString(c.Default) + ")", nil
				}
				return dialect.QuoteString(c.Default), nil
			},
		},
		score.KindFloating: {Keyword: dialect.Fixed("DOUBLE"), Default: dialect.Verbatim},
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
					return "TIMESTAMP"
				}
				return "DATETIME"
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
			Keyword: dialect.Fixed("LONGBLOB"),
			Default: func(c catalog.ColumnInfo) (string, error) { return "(" + c.Default + ")", nil },
		},
	}
}

func (a *Adaptor) Name() dialect.Name                { return dialect.MySQL }
func (a *Adaptor) DriverName() string                { return "mysql" }
func (a *Adaptor) Types() dialect.TypeRegistry       { return a.Registry }
func (a *Adaptor) Shadow() dialect.ShadowPolicy      { return dialect.NoShadow{} }
func (a *Adaptor) QuoteIdent(name string) string     { return quote(name) }
func (a *Adaptor) TableRef(grain, name string) string { return ref(grain, name) }
func (a *Adaptor) Placeholder(int) string            { return "?" }
func (a *Adaptor) NullsFirst() bool                  { return true }

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
	return a.count(ctx, c, "SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", grain)
}

func (a *Adaptor) CreateSchema(ctx context.Context, c *dialect.Conn, grain string) error {
	err := a.Exec(ctx, c, dialect.OpCreateSchema, "CREATE DATABASE "+quote(grain))
	if hasCode(err, errDatabaseExists) {
		return nil
	}
	return err
}

func (a *Adaptor) TableExists(ctx context.Context, c *dialect.Conn, grain, table string) (bool, error) {
	return a.count(ctx, c, `SELECT COUNT(*) FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'`, grain, table)
}

func (a *Adaptor) RenderSelect(sel score.Select) string {
	return a.RenderSelectWith(sel, nil)
}
