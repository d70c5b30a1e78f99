package mssql

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

func kindOf(typeName string, maxLength int) (catalog.ColumnInfo, error) {
	var ci catalog.ColumnInfo
	switch strings.ToLower(typeName) {
	case "int", "bigint", "smallint", "tinyint":
		ci.Kind = score.KindInteger
	case "nvarchar", "nchar":
		ci.Kind = score.KindString
		if maxLength < 0 {
			ci.Unbounded = true
		} else {
			ci.Length = maxLength / 2
		}
	case "varchar", "char":
		ci.Kind = score.KindString
		if maxLength < 0 {
			ci.Unbounded = true
		} else {
			ci.Length = maxLength
		}
	case "ntext", "text":
		ci.Kind = score.KindString
		ci.Unbounded = true
	case "float", "real", "decimal", "numeric":
		ci.Kind = score.KindFloating
	case "bit":
		ci.Kind = score.KindBoolean
	case "datetime2", "datetime", "date", "smalldatetime":
		ci.Kind = score.KindDateTime
	case "datetimeoffset":
		ci.Kind = score.KindDateTime
		ci.WithTimeZone = true
	case "varbinary", "binary", "image":
		ci.Kind = score.KindBinary
	default:
		return ci, fmt.Errorf("unrecognized column type %q", typeName)
	}
	return ci, nil
}

var (
	nextValueRe = regexp.MustCompile(`(?i)^next value for (.+)$`)
	isoDate     = regexp.MustCompile(`^(\d{4})-?(\d{2})-?(\d{2})(?:[ T]00:00:00(?:\.0+)?)?$`)
)

// normalizeDefault interprets sys.default_constraints.definition, which wraps the
// expression in one or two pairs of parentheses.
func normalizeDefault(kind score.ColumnKind, raw string) string {
	v := strings.TrimSpace(raw)
	for len(v) > 1 && v[0] == '(' && v[len(v)-1] == ')' {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	if m := nextValueRe.FindStringSubmatch(v); m != nil {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return "NEXTVAL(" + strings.Trim(name, "[]") + ")"
	}
	if strings.EqualFold(v, "NULL") {
		return ""
	}
	if len(v) > 1 && (v[0] == 'N' || v[0] == 'n') && v[1] == '\'' {
		v = v[1:]
	}
	switch kind {
	case score.KindString:
		return unquote(v)
	case score.KindDateTime:
		switch strings.ToLower(v) {
		case "getdate()", "sysdatetime()", "current_timestamp", "sysdatetimeoffset()":
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

func seqName(table string) string { return table + "_seq" }

func (a *Adaptor) IntrospectColumns(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.ColumnInfo, error) {
	const q = `SELECT c.name, t.name, c.max_length, c.is_nullable, dc.definition
		FROM sys.columns c
		JOIN sys.types t ON t.user_type_id = c.user_type_id
		LEFT JOIN sys.default_constraints dc ON dc.parent_object_id = c.object_id AND dc.parent_column_id = c.column_id
		WHERE c.object_id = OBJECT_ID(@p1)
		ORDER BY c.column_id`
	rows, err := c.Query(ctx, q, ref(grain, table))
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.ColumnInfo
	for rows.Next() {
		var (
			name, typeName string
			maxLength      int
			nullable       bool
			def            sql.NullString
		)
		if err := rows.Scan(&name, &typeName, &maxLength, &nullable, &def); err != nil {
			return nil, a.Introspection(q, err)
		}
		ci, err := kindOf(typeName, maxLength)
		if err != nil {
			return nil, a.Introspection(q, fmt.Errorf("%s.%s.%s: %w", grain, table, name, err))
		}
		ci.Name = name
		ci.Nullable = nullable
		if def.Valid {
			ci.Default = normalizeDefault(ci.Kind, def.String)
		}
		if ci.Default == "NEXTVAL("+seqName(table)+")" {
			ci.Identity = true
			ci.Default = ""
		}
		out = append(out, ci)
	}
	return out, a.Introspection(q, rows.Err())
}

// defaultConstraint returns the name of the default constraint bound to column, if any.
func (a *Adaptor) defaultConstraint(ctx context.Context, c *dialect.Conn, grain, table, column string) (string, error) {
	const q = `SELECT dc.name FROM sys.default_constraints dc
		JOIN sys.columns c ON c.object_id = dc.parent_object_id AND c.column_id = dc.parent_column_id
		WHERE dc.parent_object_id = OBJECT_ID(@p1) AND c.name = @p2`
	var name string
	err := c.QueryRow(ctx, q, ref(grain, table), column).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", a.Introspection(q, err)
	}
	return name, nil
}

func (a *Adaptor) IntrospectPrimaryKey(ctx context.Context, c *dialect.Conn, grain, table string) (catalog.PKInfo, error) {
	const q = `SELECT kc.name, col.name
		FROM sys.key_constraints kc
		JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
		JOIN sys.columns col ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		WHERE kc.type = 'PK' AND kc.parent_object_id = OBJECT_ID(@p1)
		ORDER BY ic.key_ordinal`
	rows, err := c.Query(ctx, q, ref(grain, table))
	if err != nil {
		return catalog.PKInfo{}, a.Introspection(q, err)
	}
	defer rows.Close()
	var pk catalog.PKInfo
	for rows.Next() {
		var col string
		if err := rows.Scan(&pk.Name, &col); err != nil {
			return catalog.PKInfo{}, a.Introspection(q, err)
		}
		pk.Columns = append(pk.Columns, col)
	}
	return pk, a.Introspection(q, rows.Err())
}

func (a *Adaptor) IntrospectIndices(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.IndexInfo, error) {
	const q = `SELECT i.name, t.name, col.name
		FROM sys.indexes i
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns col ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		WHERE SCHEMA_NAME(t.schema_id) = @p1 AND i.is_primary_key = 0 AND i.is_unique = 0 AND i.type > 0
		ORDER BY i.name, ic.key_ordinal`
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

const foreignKeysQuery = `SELECT OBJECT_SCHEMA_NAME(fk.parent_object_id), fk.name, OBJECT_NAME(fk.parent_object_id),
			OBJECT_SCHEMA_NAME(fk.referenced_object_id), OBJECT_NAME(fk.referenced_object_id), pc.name, rc.name,
			fk.delete_referential_action_desc, fk.update_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE `

func (a *Adaptor) IntrospectForeignKeys(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.FKInfo, error) {
	return a.foreignKeys(ctx, c, foreignKeysQuery+`OBJECT_SCHEMA_NAME(fk.parent_object_id) = @p1
		ORDER BY fk.name, fkc.constraint_column_id`, grain)
}

func (a *Adaptor) IntrospectReferencingKeys(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.FKInfo, error) {
	return a.foreignKeys(ctx, c, foreignKeysQuery+`OBJECT_SCHEMA_NAME(fk.referenced_object_id) = @p1
		  AND OBJECT_NAME(fk.referenced_object_id) = @p2 AND OBJECT_SCHEMA_NAME(fk.parent_object_id) <> @p1
		ORDER BY OBJECT_SCHEMA_NAME(fk.parent_object_id), fk.name, fkc.constraint_column_id`, grain, table)
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

func (a *Adaptor) IntrospectSequence(ctx context.Context, c *dialect.Conn, grain, name string) (catalog.SequenceInfo, bool, error) {
	const q = `SELECT CAST(start_value AS BIGINT), CAST(increment AS BIGINT), CAST(minimum_value AS BIGINT),
			CAST(maximum_value AS BIGINT), is_cycling
		FROM sys.sequences WHERE SCHEMA_NAME(schema_id) = @p1 AND name = @p2`
	var info catalog.SequenceInfo
	err := c.QueryRow(ctx, q, grain, name).Scan(&info.Start, &info.Increment, &info.Min, &info.Max, &info.Cycle)
	if err == sql.ErrNoRows {
		return catalog.SequenceInfo{}, false, nil
	}
	if err != nil {
		return catalog.SequenceInfo{}, false, a.Introspection(q, err)
	}
	return info, true, nil
}
