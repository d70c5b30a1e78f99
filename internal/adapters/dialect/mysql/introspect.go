package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

func kindOf(dataType, columnType string, maxLen sql.NullInt64) (catalog.ColumnInfo, error) {
	var ci catalog.ColumnInfo
	switch strings.ToLower(dataType) {
	case "tinyint":
		ci.Kind = score.KindInteger
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			ci.Kind = score.KindBoolean
		}
	case "int", "integer", "bigint", "smallint", "mediumint":
		ci.Kind = score.KindInteger
	case "bit":
		ci.Kind = score.KindBoolean
	case "varchar", "char":
		ci.Kind = score.KindString
		ci.Length = int(maxLen.Int64)
	case "text", "mediumtext", "longtext", "tinytext":
		ci.Kind = score.KindString
		ci.Unbounded = true
	case "double", "float", "decimal", "real":
		ci.Kind = score.KindFloating
	case "datetime", "date":
		ci.Kind = score.KindDateTime
	case "timestamp":
		ci.Kind = score.KindDateTime
		ci.WithTimeZone = true
	case "blob", "longblob", "mediumblob", "tinyblob", "varbinary", "binary":
		ci.Kind = score.KindBinary
	default:
		return ci, fmt.Errorf("unrecognized column type %q", columnType)
	}
	return ci, nil
}

var isoDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?: 00:00:00)?$`)

// normalizeDefault interprets information_schema.COLUMNS.COLUMN_DEFAULT. MySQL 8 reports
// literals unquoted and expressions with a charset introducer; MariaDB quotes literals.
func normalizeDefault(kind score.ColumnKind, raw string) string {
	v := strings.TrimSpace(raw)
	if len(v) > 1 && v[0] == '(' && v[len(v)-1] == ')' {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	if strings.HasPrefix(v, "_") {
		if i := strings.Index(v, `\'`); i > 0 {
			v = strings.ReplaceAll(v[i:], `\'`, "'")
		}
	}
	switch kind {
	case score.KindString:
		return unquote(v)
	case score.KindDateTime:
		switch strings.ToLower(v) {
		case "current_timestamp", "current_timestamp()", "now()":
			return score.DefaultNow
		}
		if m := isoDate.FindStringSubmatch(unquote(v)); m != nil {
			return m[1] + m[2] + m[3]
		}
		return v
	case score.KindBinary:
		if strings.HasPrefix(strings.ToLower(v), "0x") {
			return "0x" + strings.ToUpper(v[2:])
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

func (a *Adaptor) IntrospectColumns(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.ColumnInfo, error) {
	const q = `SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, CHARACTER_MAXIMUM_LENGTH, IS_NULLABLE, COLUMN_DEFAULT, EXTRA
		FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
	rows, err := c.Query(ctx, q, grain, table)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.ColumnInfo
	for rows.Next() {
		var (
			name, dataType, columnType, nullable, extra string
			maxLen                                      sql.NullInt64
			def                                         sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &columnType, &maxLen, &nullable, &def, &extra); err != nil {
			return nil, a.Introspection(q, err)
		}
		ci, err := kindOf(dataType, columnType, maxLen)
		if err != nil {
			return nil, a.Introspection(q, fmt.Errorf("%s.%s.%s: %w", grain, table, name, err))
		}
		ci.Name = name
		ci.Nullable = nullable == "YES"
		if def.Valid {
			ci.Default = normalizeDefault(ci.Kind, def.String)
		}
		ci.Identity = strings.Contains(strings.ToLower(extra), "auto_increment")
		out = append(out, ci)
	}
	return out, a.Introspection(q, rows.Err())
}

func (a *Adaptor) IntrospectPrimaryKey(ctx context.Context, c *dialect.Conn, grain, table string) (catalog.PKInfo, error) {
	const q = `SELECT COLUMN_NAME FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME = 'PRIMARY' ORDER BY SEQ_IN_INDEX`
	rows, err := c.Query(ctx, q, grain, table)
	if err != nil {
		return catalog.PKInfo{}, a.Introspection(q, err)
	}
	defer rows.Close()
	var pk catalog.PKInfo
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return catalog.PKInfo{}, a.Introspection(q, err)
		}
		pk.Columns = append(pk.Columns, col)
	}
	if len(pk.Columns) > 0 {
		pk.Name = "PRIMARY"
	}
	return pk, a.Introspection(q, rows.Err())
}

// IntrospectIndices skips the key index and the indices MySQL builds for foreign keys,
// which carry the constraint's name.
func (a *Adaptor) IntrospectIndices(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.IndexInfo, error) {
	const q = `SELECT s.INDEX_NAME, s.TABLE_NAME, s.COLUMN_NAME
		FROM information_schema.STATISTICS s
		WHERE s.TABLE_SCHEMA = ? AND s.INDEX_NAME <> 'PRIMARY' AND s.NON_UNIQUE = 1
		  AND NOT EXISTS (SELECT 1 FROM information_schema.TABLE_CONSTRAINTS tc
		    WHERE tc.TABLE_SCHEMA = s.TABLE_SCHEMA AND tc.TABLE_NAME = s.TABLE_NAME
		      AND tc.CONSTRAINT_NAME = s.INDEX_NAME AND tc.CONSTRAINT_TYPE = 'FOREIGN KEY')
		ORDER BY s.INDEX_NAME, s.SEQ_IN_INDEX`
	rows, err := c.Query(ctx, q, grain)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.IndexInfo
	for rows.Next() {
		var index, table, col string
		if err := rows.Scan(&index, &table, &col); err != nil {
			return nil, a.Introspection(q, err)
		}
		if len(out) == 0 || out[len(out)-1].Name != index {
			out = append(out, catalog.IndexInfo{Name: index, Table: table})
		}
		last := &out[len(out)-1]
		last.Columns = append(last.Columns, col)
	}
	return out, a.Introspection(q, rows.Err())
}

const foreignKeysQuery = `SELECT k.TABLE_SCHEMA, k.CONSTRAINT_NAME, k.TABLE_NAME, k.REFERENCED_TABLE_SCHEMA,
			k.REFERENCED_TABLE_NAME, k.COLUMN_NAME, k.REFERENCED_COLUMN_NAME, r.DELETE_RULE, r.UPDATE_RULE
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS r
		  ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.REFERENCED_TABLE_NAME IS NOT NULL AND `

func (a *Adaptor) IntrospectForeignKeys(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.FKInfo, error) {
	return a.foreignKeys(ctx, c, foreignKeysQuery+`k.TABLE_SCHEMA = ?
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, grain)
}

func (a *Adaptor) IntrospectReferencingKeys(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.FKInfo, error) {
	return a.foreignKeys(ctx, c, foreignKeysQuery+`k.REFERENCED_TABLE_SCHEMA = ? AND k.REFERENCED_TABLE_NAME = ?
		  AND k.TABLE_SCHEMA <> k.REFERENCED_TABLE_SCHEMA
		ORDER BY k.TABLE_SCHEMA, k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, grain, table)
}

func (a *Adaptor) foreignKeys(ctx context.Context, c *dialect.Conn, q string, args ...any) ([]catalog.FKInfo, error) {
	rows, err := c.Query(ctx, q, args...)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.FKInfo
	for rows.Next() {
		var owner, name, table, refGrain, refTable, col, refCol, del, upd string
		if err := rows.Scan(&owner, &name, &table, &refGrain, &refTable, &col, &refCol, &del, &upd); err != nil {
			return nil, a.Introspection(q, err)
		}
		if n := len(out); n == 0 || out[n-1].Grain != owner || out[n-1].Name != name {
			onDelete, _ := score.ParseFKRule(del)
			onUpdate, _ := score.ParseFKRule(upd)
			out = append(out, catalog.FKInfo{
				Name: name, Grain: owner, Table: table, RefGrain: refGrain, RefTable: refTable,
				OnDelete: onDelete, OnUpdate: onUpdate,
			})
		}
		last := &out[len(out)-1]
		last.Columns = append(last.Columns, col)
		last.RefColumns = append(last.RefColumns, refCol)
	}
	return out, a.Introspection(q, rows.Err())
}
