// Package dialect defines the contract every supported RDBMS implements:
// DDL generation, catalog introspection and the quirks (identity emulation,
// optimistic-concurrency triggers, ordering defaults) the migration engine relies on.
package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Name identifies a dialect.
type Name string

const (
	SQLite     Name = "sqlite"
	PostgreSQL Name = "postgres"
	MySQL      Name = "mysql"
	MSSQL      Name = "mssql"
)

// Names lists the supported dialects.
func Names() []Name {
	return []Name{SQLite, PostgreSQL, MySQL, MSSQL}
}

// ParseName accepts the dialect name and common aliases.
func ParseName(s string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return PostgreSQL, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", s)
}

// Op classifies the statements an adaptor issues.
type Op string

const (
	OpIntrospect       Op = "introspect"
	OpCreateSchema     Op = "create-schema"
	OpCreateTable      Op = "create-table"
	OpDropTable        Op = "drop-table"
	OpAddColumn        Op = "add-column"
	OpDropColumn       Op = "drop-column"
	OpAlterColumn      Op = "alter-column"
	OpDropPrimaryKey   Op = "drop-primary-key"
	OpCreatePrimaryKey Op = "create-primary-key"
	OpCreateIndex      Op = "create-index"
	OpDropIndex        Op = "drop-index"
	OpCreateForeignKey Op = "create-foreign-key"
	OpDropForeignKey   Op = "drop-foreign-key"
	OpAutoIncrement    Op = "auto-increment"
	OpVersionTrigger   Op = "versioning-trigger"
	OpResetIdentity    Op = "reset-identity"
	OpCreateSequence   Op = "create-sequence"
	OpAlterSequence    Op = "alter-sequence"
	OpCreateView       Op = "create-view"
	OpDropView         Op = "drop-view"
)

// Adaptor is implemented once per dialect. Methods that talk to the database
// return *Error; introspecting an object that does not exist is not an error.
type Adaptor interface {
	Name() Name
	// DriverName is the database/sql driver registered for the dialect.
	DriverName() string
	Types() TypeRegistry
	Shadow() ShadowPolicy

	QuoteIdent(name string) string
	// TableRef is the qualified, quoted name of a grain object.
	TableRef(grain, name string) string
	// Placeholder is the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// NullsFirst reports whether NULLs sort before values in ascending order.
	NullsFirst() bool
	// TranslateDateLiteral renders a YYYYMMDD date as a dialect literal.
	TranslateDateLiteral(yyyymmdd string) (string, error)
	// PrepareConn applies per-connection settings after acquisition.
	PrepareConn(ctx context.Context, c *Conn) error

	SchemaExists(ctx context.Context, c *Conn, grain string) (bool, error)
	CreateSchema(ctx context.Context, c *Conn, grain string) error
	TableExists(ctx context.Context, c *Conn, grain, table string) (bool, error)
	IntrospectColumns(ctx context.Context, c *Conn, grain, table string) ([]catalog.ColumnInfo, error)
	IntrospectPrimaryKey(ctx context.Context, c *Conn, grain, table string) (catalog.PKInfo, error)
	// IntrospectIndices lists the secondary indices of every table in the grain,
	// folding shadow indices into their primary index.
	IntrospectIndices(ctx context.Context, c *Conn, grain string) ([]catalog.IndexInfo, error)
	// IntrospectForeignKeys lists the foreign keys owned by tables of the grain.
	IntrospectForeignKeys(ctx context.Context, c *Conn, grain string) ([]catalog.FKInfo, error)
	// IntrospectReferencingKeys lists the foreign keys of other grains that
	// reference grain.table.
	IntrospectReferencingKeys(ctx context.Context, c *Conn, grain, table string) ([]catalog.FKInfo, error)

	CreateTable(ctx context.Context, c *Conn, t *score.Table) error
	DropTable(ctx context.Context, c *Conn, grain, table string) error
	AddColumn(ctx context.Context, c *Conn, t *score.Table, col *score.Column) error
	DropColumn(ctx context.Context, c *Conn, t *score.Table, column string) error
	AlterColumn(ctx context.Context, c *Conn, t *score.Table, col *score.Column, actual catalog.ColumnInfo) error
	DropPrimaryKey(ctx context.Context, c *Conn, t *score.Table, pk catalog.PKInfo) error
	CreatePrimaryKey(ctx context.Context, c *Conn, t *score.Table) error
	CreateIndex(ctx context.Context, c *Conn, t *score.Table, idx *score.Index) error
	DropIndex(ctx context.Context, c *Conn, grain string, idx catalog.IndexInfo) error
	CreateForeignKey(ctx context.Context, c *Conn, fk *score.ForeignKey) error
	DropForeignKey(ctx context.Context, c *Conn, grain string, fk catalog.FKInfo) error
	// ManageAutoIncrement brings the identity apparatus in line with the table's
	// identity column, issuing nothing when it already matches.
	ManageAutoIncrement(ctx context.Context, c *Conn, t *score.Table) error
	// UpdateVersioningTrigger installs or removes the recversion check trigger.
	UpdateVersioningTrigger(ctx context.Context, c *Conn, t *score.Table) error
	// ResetIdentity makes the next generated identity value equal to value.
	ResetIdentity(ctx context.Context, c *Conn, t *score.Table, value int64) error

	IntrospectSequence(ctx context.Context, c *Conn, grain, name string) (catalog.SequenceInfo, bool, error)
	CreateSequence(ctx context.Context, c *Conn, seq *score.Sequence) error
	AlterSequence(ctx context.Context, c *Conn, seq *score.Sequence) error

	ViewExists(ctx context.Context, c *Conn, grain, name string, kind score.ViewKind) (bool, error)
	// CreateView creates plain and parameterized views.
	CreateView(ctx context.Context, c *Conn, s *score.Score, v *score.View) error
	DropView(ctx context.Context, c *Conn, grain, name string, kind score.ViewKind) error
	// RenderSelect renders a query with fully qualified table references.
	RenderSelect(sel score.Select) string
}
