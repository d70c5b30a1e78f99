package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

var declType = regexp.MustCompile(`^([A-Z ]+?)\s*(?:\(\s*(\d+)\s*\))?$`)

// parseType maps a declared column type back to a column kind.
func parseType(decl string) (catalog.ColumnInfo, error) {
	m := declType.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(decl)))
	if m == nil {
		return catalog.ColumnInfo{}, fmt.Errorf("unrecognized column type %q", decl)
	}
	var ci catalog.ColumnInfo
	switch m[1] {
	case "INTEGER", "INT", "BIGINT", "SMALLINT":
		ci.Kind = score.KindInteger
	case "VARCHAR", "NVARCHAR", "CHARACTER VARYING":
		ci.Kind = score.KindString
		if m[2] == "" {
			ci.Unbounded = true
		} else {
			ci.Length, _ = strconv.Atoi(m[2])
		}
	case "TEXT", "CLOB":
		ci.Kind = score.KindString
		ci.Unbounded = true
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		ci.Kind = score.KindFloating
	case "BOOLEAN", "BOOL", "BIT":
		ci.Kind = score.KindBoolean
	case "TIMESTAMP", "DATETIME":
		ci.Kind = score.KindDateTime
	case "TIMESTAMPTZ":
		ci.Kind = score.KindDateTime
		ci.WithTimeZone = true
	case "BLOB":
		ci.Kind = score.KindBinary
	default:
		return catalog.ColumnInfo{}, fmt.Errorf("unrecognized column type %q", decl)
	}
	return ci, nil
}

var isoDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?: 00:00:00)?$`)

// normalizeDefault turns a stored default expression into the canonical spelling.
// Expressions it cannot interpret are returned unchanged so that they show up as a difference.
func normalizeDefault(kind score.ColumnKind, raw string) string {
	v := strings.TrimSpace(raw)
	for len(v) > 1 && v[0] == '(' && v[len(v)-1] == ')' {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	if v == "" || strings.EqualFold(v, "NULL") {
		return ""
	}
	switch kind {
	case score.KindString:
		return unquote(v)
	case score.KindDateTime:
		upper := strings.ToUpper(v)
		if upper == "CURRENT_TIMESTAMP" || upper == "DATETIME('NOW')" {
			return score.DefaultNow
		}
		if m := isoDate.FindStringSubmatch(unquote(v)); m != nil {
			return m[1] + m[2] + m[3]
		}
		return v
	case score.KindBinary:
		if len(v) > 3 && (v[0] == 'X' || v[0] == 'x') && v[1] == '\'' {
			return "0x" + strings.ToUpper(strings.Trim(v[1:], "'"))
		}
		return v
	}
	if canonical, err := score.NormalizeDefault(kind, unquote(v)); err == nil {
		return canonical
	}
	return v
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

type tableInfoRow struct {
	name    string
	decl    string
	notNull bool
	dflt    sql.NullString
	pk      int
}

func (a *Adaptor) tableInfo(ctx context.Context, c *dialect.Conn, name string) ([]tableInfoRow, error) {
	const q = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`
	rows, err := c.Query(ctx, q, name)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []tableInfoRow
	for rows.Next() {
		var r tableInfoRow
		if err := rows.Scan(&r.name, &r.decl, &r.notNull, &r.dflt, &r.pk); err != nil {
			return nil, a.Introspection(q, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, a.Introspection(q, err)
	}
	return out, nil
}

func (a *Adaptor) createSQL(ctx context.Context, c *dialect.Conn, name string) (string, error) {
	const q = "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?"
	var s sql.NullString
	err := c.QueryRow(ctx, q, name).Scan(&s)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", a.Introspection(q, err)
	}
	return s.String, nil
}

// IntrospectColumns reads pragma_table_info. An identity column is the rowid alias of an
// AUTOINCREMENT table.
func (a *Adaptor) IntrospectColumns(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.ColumnInfo, error) {
	name := physical(grain, table)
	rows, err := a.tableInfo(ctx, c, name)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	create, err := a.createSQL(ctx, c, name)
	if err != nil {
		return nil, err
	}
	autoinc := strings.Contains(strings.ToUpper(create), "AUTOINCREMENT")
	pkCols := 0
	for _, r := range rows {
		if r.pk > 0 {
			pkCols++
		}
	}

	out := make([]catalog.ColumnInfo, 0, len(rows))
	for _, r := range rows {
		ci, err := parseType(r.decl)
		if err != nil {
			return nil, a.Introspection("pragma_table_info", fmt.Errorf("%s.%s: %w", name, r.name, err))
		}
		ci.Name = r.name
		ci.Nullable = !r.notNull
		if r.dflt.Valid {
			ci.Default = normalizeDefault(ci.Kind, r.dflt.String)
		}
		ci.Identity = autoinc && r.pk > 0 && pkCols == 1 && ci.Kind == score.KindInteger
		out = append(out, ci)
	}
	return out, nil
}

// IntrospectPrimaryKey orders key columns by their position in the key.
func (a *Adaptor) IntrospectPrimaryKey(ctx context.Context, c *dialect.Conn, grain, table string) (catalog.PKInfo, error) {
	rows, err := a.tableInfo(ctx, c, physical(grain, table))
	if err != nil {
		return catalog.PKInfo{}, err
	}
	positions := make(map[int]string)
	for _, r := range rows {
		if r.pk > 0 {
			positions[r.pk] = r.name
		}
	}
	pk := catalog.PKInfo{}
	for i := 1; i <= len(positions); i++ {
		pk.Columns = append(pk.Columns, positions[i])
	}
	if len(pk.Columns) > 0 {
		pk.Name = "pk_" + table
	}
	return pk, nil
}

func (a *Adaptor) grainObjects(ctx context.Context, c *dialect.Conn, kind, grain string) ([][2]string, error) {
	const q = `SELECT name, tbl_name FROM sqlite_master
		WHERE type = ? AND substr(name, 1, ?) = ? AND sql IS NOT NULL ORDER BY name`
	prefix := grain + "."
	rows, err := c.Query(ctx, q, kind, len(prefix), prefix)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var name, tbl string
		if err := rows.Scan(&name, &tbl); err != nil {
			return nil, a.Introspection(q, err)
		}
		out = append(out, [2]string{strings.TrimPrefix(name, prefix), strings.TrimPrefix(tbl, prefix)})
	}
	return out, a.Introspection(q, rows.Err())
}

func (a *Adaptor) indexColumns(ctx context.Context, c *dialect.Conn, name string) ([]string, error) {
	const q = "SELECT name FROM pragma_index_info(?) ORDER BY seqno"
	rows, err := c.Query(ctx, q, name)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var col sql.NullString
		if err := rows.Scan(&col); err != nil {
			return nil, a.Introspection(q, err)
		}
		cols = append(cols, col.String)
	}
	return cols, a.Introspection(q, rows.Err())
}

// IntrospectIndices lists explicitly created indices; automatic key indices have no SQL and are skipped.
func (a *Adaptor) IntrospectIndices(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.IndexInfo, error) {
	objs, err := a.grainObjects(ctx, c, "index", grain)
	if err != nil {
		return nil, err
	}
	var out []catalog.IndexInfo
	shadows := make(map[string]bool)
	for _, o := range objs {
		if primary, ok := a.Shadows.Primary(o[0]); ok {
			shadows[primary] = true
			continue
		}
		cols, err := a.indexColumns(ctx, c, physical(grain, o[0]))
		if err != nil {
			return nil, err
		}
		out = append(out, catalog.IndexInfo{Name: o[0], Table: o[1], Columns: cols})
	}
	for i := range out {
		out[i].Shadow = shadows[out[i].Name]
	}
	return out, nil
}

func (a *Adaptor) tableForeignKeys(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.FKInfo, error) {
	const q = `SELECT id, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`
	rows, err := c.Query(ctx, q, physical(grain, table))
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.FKInfo
	last := -1
	for rows.Next() {
		var (
			id                 int
			target, from       string
			to                 sql.NullString
			onUpdate, onDelete string
		)
		if err := rows.Scan(&id, &target, &from, &to, &onUpdate, &onDelete); err != nil {
			return nil, a.Introspection(q, err)
		}
		if id != last {
			refGrain, refTable := grain, target
			if i := strings.Index(target, "."); i > 0 {
				refGrain, refTable = target[:i], target[i+1:]
			}
			del, _ := score.ParseFKRule(onDelete)
			upd, _ := score.ParseFKRule(onUpdate)
			out = append(out, catalog.FKInfo{Grain: grain, Table: table, RefGrain: refGrain, RefTable: refTable, OnDelete: del, OnUpdate: upd})
			last = id
		}
		fk := &out[len(out)-1]
		fk.Columns = append(fk.Columns, from)
		fk.RefColumns = append(fk.RefColumns, to.String)
	}
	if err := rows.Err(); err != nil {
		return nil, a.Introspection(q, err)
	}
	for i := range out {
		out[i].Name = "fk_" + table + "_" + strings.Join(out[i].Columns, "_")
	}
	return out, nil
}

// IntrospectForeignKeys collects the keys of every table of the grain.
// SQLite does not keep constraint names, so keys are matched by signature only.
func (a *Adaptor) IntrospectForeignKeys(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.FKInfo, error) {
	tables, err := a.grainObjects(ctx, c, "table", grain)
	if err != nil {
		return nil, err
	}
	var out []catalog.FKInfo
	for _, t := range tables {
		fks, err := a.tableForeignKeys(ctx, c, grain, t[0])
		if err != nil {
			return nil, err
		}
		out = append(out, fks...)
	}
	return out, nil
}

// IntrospectReferencingKeys reads the key list of every table outside the grain.
func (a *Adaptor) IntrospectReferencingKeys(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.FKInfo, error) {
	const q = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND instr(name, '.') > 0 AND substr(name, 1, ?) <> ? ORDER BY name`
	prefix := grain + "."
	rows, err := c.Query(ctx, q, len(prefix), prefix)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, a.Introspection(q, err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, a.Introspection(q, err)
	}

	var out []catalog.FKInfo
	for _, name := range names {
		i := strings.Index(name, ".")
		fks, err := a.tableForeignKeys(ctx, c, name[:i], name[i+1:])
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			if fk.RefGrain == grain && fk.RefTable == table {
				out = append(out, fk)
			}
		}
	}
	return out, nil
}
