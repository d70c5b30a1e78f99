package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Base carries the rendering shared by every dialect. Adaptors embed it and
// supply quoting, qualification and their type registry.
type Base struct {
	Dialect  Name
	Quote    func(name string) string
	Ref      func(grain, name string) string
	Registry TypeRegistry
	// NextVal renders a sequence-fed default; nil when the dialect has no native sequences.
	NextVal func(grain, seq string) string
}

// Exec issues statements in order, stopping at the first failure.
func (b Base) Exec(ctx context.Context, c *Conn, op Op, stmts ...string) error {
	for _, stmt := range stmts {
		if err := c.ExecDDL(ctx, op, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Introspection wraps a catalog query failure.
func (b Base) Introspection(stmt string, err error) error {
	return Wrap(b.Dialect, OpIntrospect, stmt, err)
}

// Fail wraps a rendering failure that happened before any statement was sent.
func (b Base) Fail(op Op, err error) error {
	return Wrap(b.Dialect, op, "", err)
}

// ColumnDef renders "name TYPE [DEFAULT x] [NOT] NULL".
func (b Base) ColumnDef(ci catalog.ColumnInfo) (string, error) {
	kw, err := b.Registry.Keyword(ci)
	if err != nil {
		return "", err
	}
	def, err := b.Registry.Default(ci)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(b.Quote(ci.Name))
	sb.WriteString(" ")
	sb.WriteString(kw)
	if def != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(def)
	}
	if ci.Nullable {
		sb.WriteString(" NULL")
	} else {
		sb.WriteString(" NOT NULL")
	}
	return sb.String(), nil
}

// ColumnDefIn is ColumnDef for a column of a table in grain, resolving sequence-fed defaults.
func (b Base) ColumnDefIn(grain string, ci catalog.ColumnInfo) (string, error) {
	seq, ok := SequenceOf(ci.Default)
	if !ok || b.NextVal == nil {
		return b.ColumnDef(ci)
	}
	plain := ci
	plain.Default = ""
	def, err := b.ColumnDef(plain)
	if err != nil {
		return "", err
	}
	kw, _ := b.Registry.Keyword(ci)
	head := b.Quote(ci.Name) + " " + kw
	return head + " DEFAULT " + b.NextVal(grain, seq) + def[len(head):], nil
}

// ColumnList quotes and joins column names.
func (b Base) ColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// PrimaryKeyClause renders the table constraint of t's key.
func (b Base) PrimaryKeyClause(t *score.Table) string {
	return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", b.Quote(t.PrimaryKeyName()), b.ColumnList(t.PrimaryKey()))
}

// ForeignKeyClause renders a named foreign key constraint.
func (b Base) ForeignKeyClause(name string, cols []string, refGrain, refTable string, refCols []string, onDelete, onUpdate score.FKRule) string {
	var sb strings.Builder
	if name != "" {
		fmt.Fprintf(&sb, "CONSTRAINT %s ", b.Quote(name))
	}
	fmt.Fprintf(&sb, "FOREIGN KEY (%s) REFERENCES %s (%s)", b.ColumnList(cols), b.Ref(refGrain, refTable), b.ColumnList(refCols))
	fmt.Fprintf(&sb, " ON DELETE %s ON UPDATE %s", onDelete, onUpdate)
	return sb.String()
}

// CreateTableSQL renders CREATE TABLE with every column and the primary key.
// identity, when non-nil, may rewrite the definition of the identity column.
func (b Base) CreateTableSQL(t *score.Table, identity func(def string) string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", b.Ref(t.Grain, t.Name))
	for _, col := range t.Columns() {
		def, err := b.ColumnDefIn(t.Grain, catalog.Describe(col))
		if err != nil {
			return "", err
		}
		if col.Identity() && identity != nil {
			def = identity(def)
		}
		sb.WriteString("  ")
		sb.WriteString(def)
		sb.WriteString(",\n")
	}
	sb.WriteString("  ")
	sb.WriteString(b.PrimaryKeyClause(t))
	sb.WriteString("\n)")
	return sb.String(), nil
}

// RenderSelectWith renders a query; param renders a parameter reference.
func (b Base) RenderSelectWith(sel score.Select, param func(name string) string) string {
	alias := sel.From.Alias
	if alias == "" {
		alias = sel.From.Table
	}
	ref := func(c score.ColumnRef) string {
		return b.Quote(alias) + "." + b.Quote(c.Column)
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, it := range sel.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch {
		case it.Star:
			sb.WriteString(string(it.Aggregate) + "(*)")
		case it.Aggregate != score.AggNone:
			sb.WriteString(string(it.Aggregate) + "(" + ref(it.Column) + ")")
		default:
			sb.WriteString(ref(it.Column))
		}
		sb.WriteString(" AS ")
		sb.WriteString(b.Quote(it.OutputName()))
	}
	fmt.Fprintf(&sb, " FROM %s AS %s", b.Ref(sel.From.Grain, sel.From.Table), b.Quote(alias))
	for i, cond := range sel.Where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(ref(cond.Left) + " " + cond.Op + " ")
		if cond.Param != "" && param != nil {
			sb.WriteString(param(cond.Param))
		} else {
			sb.WriteString(cond.Literal)
		}
	}
	for i, g := range sel.GroupBy {
		if i == 0 {
			sb.WriteString(" GROUP BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(ref(g))
	}
	return sb.String()
}

// ParamIndex returns the 1-based position of a view parameter.
func ParamIndex(v *score.View, name string) int {
	for i, p := range v.Params {
		if p.Name == name {
			return i + 1
		}
	}
	return 0
}
