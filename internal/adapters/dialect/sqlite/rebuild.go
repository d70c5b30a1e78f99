package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
)

const rebuildSuffix = "__rebuild"

// shape is the physical definition of a table as far as a rebuild is concerned.
type shape struct {
	columns []catalog.ColumnInfo
	pk      []string
	fks     []catalog.FKInfo
}

func (a *Adaptor) loadShape(ctx context.Context, c *dialect.Conn, grain, table string) (*shape, error) {
	cols, err := a.IntrospectColumns(ctx, c, grain, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, a.Introspection("pragma_table_info", fmt.Errorf("table %s does not exist", physical(grain, table)))
	}
	pk, err := a.IntrospectPrimaryKey(ctx, c, grain, table)
	if err != nil {
		return nil, err
	}
	fks, err := a.tableForeignKeys(ctx, c, grain, table)
	if err != nil {
		return nil, err
	}
	return &shape{columns: cols, pk: pk.Columns, fks: fks}, nil
}

func (a *Adaptor) shapeSQL(grain, table, target string, s *shape) (string, error) {
	inline := ""
	if len(s.pk) == 1 {
		for _, ci := range s.columns {
			if ci.Identity && ci.Name == s.pk[0] {
				inline = ci.Name
			}
		}
	}
	var parts []string
	for _, ci := range s.columns {
		ci.Identity = false
		def, err := a.ColumnDef(ci)
		if err != nil {
			return "", err
		}
		if ci.Name == inline {
			def = identityInline(def)
		}
		parts = append(parts, def)
	}
	if len(s.pk) > 0 && inline == "" {
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", quote("pk_"+table), a.ColumnList(s.pk)))
	}
	for _, fk := range s.fks {
		parts = append(parts, a.ForeignKeyClause(fk.Name, fk.Columns, fk.RefGrain, fk.RefTable, fk.RefColumns, fk.OnDelete, fk.OnUpdate))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quote(target), strings.Join(parts, ",\n  ")), nil
}

// dependentSQL captures the index and trigger DDL dropped together with a table.
func (a *Adaptor) dependentSQL(ctx context.Context, c *dialect.Conn, name string) ([]string, error) {
	const q = `SELECT sql FROM sqlite_master
		WHERE tbl_name = ? AND type IN ('index', 'trigger') AND sql IS NOT NULL ORDER BY type, name`
	rows, err := c.Query(ctx, q, name)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, a.Introspection(q, err)
		}
		out = append(out, s.String)
	}
	return out, a.Introspection(q, rows.Err())
}

// rebuild applies edit to the table's current shape and recreates the table:
// the new definition is created beside the old one, common columns are copied,
// the old table is dropped, the copy renamed and dependent indices and triggers replayed.
// Every statement is reported under op.
func (a *Adaptor) rebuild(ctx context.Context, c *dialect.Conn, op dialect.Op, grain, table string, edit func(*shape) error) (err error) {
	s, err := a.loadShape(ctx, c, grain, table)
	if err != nil {
		return err
	}
	old := make(map[string]bool, len(s.columns))
	for _, ci := range s.columns {
		old[ci.Name] = true
	}
	if err := edit(s); err != nil {
		return a.Fail(op, err)
	}
	name := physical(grain, table)
	tmp := name + rebuildSuffix
	create, err := a.shapeSQL(grain, table, tmp, s)
	if err != nil {
		return a.Fail(op, err)
	}
	dependents, err := a.dependentSQL(ctx, c, name)
	if err != nil {
		return err
	}
	var common []string
	for _, ci := range s.columns {
		if old[ci.Name] {
			common = append(common, ci.Name)
		}
	}

	if _, err := c.Exec(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return a.Fail(op, err)
	}
	if _, err := c.Exec(ctx, "PRAGMA legacy_alter_table = ON"); err != nil {
		return a.Fail(op, err)
	}
	defer func() {
		_, e1 := c.Exec(ctx, "PRAGMA legacy_alter_table = OFF")
		_, e2 := c.Exec(ctx, "PRAGMA foreign_keys = ON")
		if err == nil && e1 != nil {
			err = a.Fail(op, e1)
		}
		if err == nil && e2 != nil {
			err = a.Fail(op, e2)
		}
	}()

	stmts := []string{"DROP TABLE IF EXISTS " + quote(tmp), create}
	if len(common) > 0 {
		list := a.ColumnList(common)
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quote(tmp), list, list, quote(name)))
	}
	stmts = append(stmts,
		"DROP TABLE "+quote(name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(tmp), quote(name)),
	)
	stmts = append(stmts, dependents...)
	return a.Exec(ctx, c, op, stmts...)
}
