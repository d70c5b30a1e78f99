package postgres

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

func kindOf(dataType string, maxLen sql.NullInt64) (catalog.ColumnInfo, error) {
	var ci catalog.ColumnInfo
	switch dataType {
	case "integer", "bigint", "smallint":
		ci.Kind = score.KindInteger
	case "character varying", "character":
		ci.Kind = score.KindString
		if maxLen.Valid {
			ci.Length = int(maxLen.Int64)
		} else {
			ci.Unbounded = true
		}
	case "text":
		ci.Kind = score.KindString
		ci.Unbounded = true
	case "double precision", "real", "numeric":
		ci.Kind = score.KindFloating
	case "boolean":
		ci.Kind = score.KindBoolean
	case "timestamp without time zone", "date":
		ci.Kind = score.KindDateTime
	case "timestamp with time zone":
		ci.Kind = score.KindDateTime
		ci.WithTimeZone = true
	case "bytea":
		ci.Kind = score.KindBinary
	default:
		return ci, fmt.Errorf("unrecognized column type %q", dataType)
	}
	return ci, nil
}

var (
	castSuffix = regexp.MustCompile(`(?i)::[a-z ]+(\(\d+\))?$`)
	nextvalRe  = regexp.MustCompile(`(?i)^nextval\('(.+)'(?:::regclass)?\)$`)
	isoDate    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?: 00:00:00)?$`)
)

// normalizeDefault turns information_schema.columns.column_default into the canonical spelling.
func normalizeDefault(kind score.ColumnKind, raw string) string {
	v := strings.TrimSpace(raw)
	if m := nextvalRe.FindStringSubmatch(v); m != nil {
		name := strings.ReplaceAll(m[1], `"`, "")
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return "NEXTVAL(" + name + ")"
	}
	for {
		prev := v
		v = strings.TrimSpace(castSuffix.ReplaceAllString(v, ""))
		if len(v) > 1 && v[0] == '(' && v[len(v)-1] == ')' {
			v = strings.TrimSpace(v[1 : len(v)-1])
		}
		if v == prev {
			break
		}
	}
	if v == "" || strings.EqualFold(v, "NULL") {
		return ""
	}
	switch kind {
	case score.KindString:
		return unquote(v)
	case score.KindDateTime:
		switch strings.ToLower(v) {
		case "current_timestamp", "now()", "localtimestamp":
			return score.DefaultNow
		}
		if m := isoDate.FindStringSubmatch(unquote(v)); m != nil {
			return m[1] + m[2] + m[3]
		}
		return v
	case score.KindBinary:
		u := unquote(v)
		if strings.HasPrefix(u, `\x`) {
			return "0x" + strings.ToUpper(u[2:])
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

// IntrospectColumns reads information_schema.columns. A column fed by the table's own
// <table>_seq sequence is reported as the identity column without a default.
func (a *Adaptor) IntrospectColumns(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.ColumnInfo, error) {
	const q = `SELECT column_name, data_type, character_maximum_length, is_nullable, column_default
		FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`
	rows, err := c.Query(ctx, q, grain, table)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.ColumnInfo
	for rows.Next() {
		var (
			name, dataType, nullable string
			maxLen                   sql.NullInt64
			def                      sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &maxLen, &nullable, &def); err != nil {
			return nil, a.Introspection(q, err)
		}
		ci, err := kindOf(dataType, maxLen)
		if err != nil {
			return nil, a.Introspection(q, fmt.Errorf("%s.%s.%s: %w", grain, table, name, err))
		}
		ci.Name = name
		ci.Nullable = nullable == "YES"
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

func (a *Adaptor) IntrospectPrimaryKey(ctx context.Context, c *dialect.Conn, grain, table string) (catalog.PKInfo, error) {
	const q = `SELECT con.conname, att.attname
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON TRUE
		JOIN pg_attribute att ON att.attrelid = t.oid AND att.attnum = k.attnum
		WHERE con.contype = 'p' AND n.nspname = $1 AND t.relname = $2
		ORDER BY k.ord`
	rows, err := c.Query(ctx, q, grain, table)
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

// IntrospectIndices lists non-unique secondary indices. Expression columns of
// shadow indices have no attribute and come back as NULL.
func (a *Adaptor) IntrospectIndices(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.IndexInfo, error) {
	const q = `SELECT i.relname, t.relname, att.attname
		FROM pg_index x
		JOIN pg_class i ON i.oid = x.indexrelid
		JOIN pg_class t ON t.oid = x.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN LATERAL unnest(x.indkey) WITH ORDINALITY AS k(attnum, ord) ON TRUE
		LEFT JOIN pg_attribute att ON att.attrelid = t.oid AND att.attnum = k.attnum
		WHERE n.nspname = $1 AND NOT x.indisprimary AND NOT x.indisunique
		ORDER BY i.relname, k.ord`
	rows, err := c.Query(ctx, q, grain)
	if err != nil {
		return nil, a.Introspection(q, err)
	}
	defer rows.Close()
	var out []catalog.IndexInfo
	shadows := make(map[string]bool)
	for rows.Next() {
		var (
			index, table string
			col          sql.NullString
		)
		if err := rows.Scan(&index, &table, &col); err != nil {
			return nil, a.Introspection(q, err)
		}
		if primary, ok := a.Shadows.Primary(index); ok {
			shadows[primary] = true
			continue
		}
		if len(out) == 0 || out[len(out)-1].Name != index {
			out = append(out, catalog.IndexInfo{Name: index, Table: table})
		}
		last := &out[len(out)-1]
		last.Columns = append(last.Columns, col.String)
	}
	if err := rows.Err(); err != nil {
		return nil, a.Introspection(q, err)
	}
	for i := range out {
		out[i].Shadow = shadows[out[i].Name]
	}
	return out, nil
}

func ruleOf(code string) score.FKRule {
	switch code {
	case "c":
		return score.FKCascade
	case "n":
		return score.FKSetNull
	}
	return score.FKNoAction
}

const foreignKeysQuery = `SELECT n.nspname, con.conname, t.relname, rn.nspname, rt.relname, att.attname, ratt.attname,
			con.confdeltype, con.confupdtype
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class rt ON rt.oid = con.confrelid
		JOIN pg_namespace rn ON rn.oid = rt.relnamespace
		JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refnum, ord) ON TRUE
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = k.attnum
		JOIN pg_attribute ratt ON ratt.attrelid = con.confrelid AND ratt.attnum = k.refnum
		WHERE con.contype = 'f' AND `

func (a *Adaptor) IntrospectForeignKeys(ctx context.Context, c *dialect.Conn, grain string) ([]catalog.FKInfo, error) {
	return a.foreignKeys(ctx, c, foreignKeysQuery+`n.nspname = $1
		ORDER BY con.conname, k.ord`, grain)
}

func (a *Adaptor) IntrospectReferencingKeys(ctx context.Context, c *dialect.Conn, grain, table string) ([]catalog.FKInfo, error) {
	return a.foreignKeys(ctx, c, foreignKeysQuery+`rn.nspname = $1 AND rt.relname = $2 AND n.nspname <> $1
		ORDER BY n.nspname, con.conname, k.ord`, grain, table)
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
			out = append(out, catalog.FKInfo{
				Name: name, Grain: owner, Table: table, RefGrain: refGrain, RefTable: refTable,
				OnDelete: ruleOf(del), OnUpdate: ruleOf(upd),
			})
		}
		last := &out[len(out)-1]
		last.Columns = append(last.Columns, col)
		last.RefColumns = append(last.RefColumns, refCol)
	}
	return out, a.Introspection(q, rows.Err())
}

func (a *Adaptor) IntrospectSequence(ctx context.Context, c *dialect.Conn, grain, name string) (catalog.SequenceInfo, bool, error) {
	const q = `SELECT start_value, increment_by, min_value, max_value, cycle
		FROM pg_sequences WHERE schemaname = $1 AND sequencename = $2`
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
