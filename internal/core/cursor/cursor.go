// Package cursor provides row-level access to any table of the score: filter
// with SetRange, walk the filtered set with NextInSet, write with TryInsert and
// Update. The system catalog store keeps its bookkeeping through it.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

var (
	// ErrUnknownColumn is returned when a column is not part of the cursor's table.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrNoKey is returned by writes when a primary key column has no value.
	ErrNoKey = errors.New("primary key value missing")
)

// QueryError carries the failing operation and statement.
type QueryError struct {
	Operation string
	Table     string
	Query     string
	Cause     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Operation, e.Table, e.Cause)
}

func (e *QueryError) Unwrap() error { return e.Cause }

type rangeFilter struct {
	column string
	value  any
}

// Cursor is positioned on at most one record of a table. It is not safe for concurrent use.
type Cursor struct {
	conn    *dialect.Conn
	adaptor dialect.Adaptor
	table   *score.Table

	ranges []rangeFilter
	values map[string]any

	set []map[string]any
	pos int
}

// New opens a cursor over t on conn.
func New(conn *dialect.Conn, adaptor dialect.Adaptor, t *score.Table) *Cursor {
	return &Cursor{conn: conn, adaptor: adaptor, table: t, values: make(map[string]any), pos: -1}
}

// Table returns the table the cursor reads.
func (c *Cursor) Table() *score.Table { return c.table }

func (c *Cursor) column(name string) (*score.Column, error) {
	col, ok := c.table.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w %q in %s.%s", ErrUnknownColumn, name, c.table.Grain, c.table.Name)
	}
	return col, nil
}

// SetRange restricts the set to rows whose column equals value; a nil value matches NULL.
// Setting a range discards any set already being walked.
func (c *Cursor) SetRange(column string, value any) error {
	if _, err := c.column(column); err != nil {
		return err
	}
	for i := range c.ranges {
		if c.ranges[i].column == column {
			c.ranges[i].value = value
			c.reset()
			return nil
		}
	}
	c.ranges = append(c.ranges, rangeFilter{column: column, value: value})
	c.reset()
	return nil
}

// ClearRanges removes every filter.
func (c *Cursor) ClearRanges() {
	c.ranges = nil
	c.reset()
}

// Clear empties the record buffer.
func (c *Cursor) Clear() {
	c.values = make(map[string]any)
}

func (c *Cursor) reset() {
	c.set = nil
	c.pos = -1
}

// Set assigns a field of the record buffer.
func (c *Cursor) Set(column string, value any) error {
	if _, err := c.column(column); err != nil {
		return err
	}
	c.values[column] = value
	return nil
}

// Get returns a field of the current record, nil when NULL or unset.
func (c *Cursor) Get(column string) any { return c.values[column] }

func (c *Cursor) String(column string) string {
	s, _ := c.values[column].(string)
	return s
}

func (c *Cursor) Int(column string) int64 {
	n, _ := c.values[column].(int64)
	return n
}

func (c *Cursor) Bool(column string) bool {
	b, _ := c.values[column].(bool)
	return b
}

func (c *Cursor) where(args *[]any) string {
	if len(c.ranges) == 0 {
		return ""
	}
	conds := make([]string, len(c.ranges))
	for i, r := range c.ranges {
		if r.value == nil {
			conds[i] = c.adaptor.QuoteIdent(r.column) + " IS NULL"
			continue
		}
		*args = append(*args, r.value)
		conds[i] = c.adaptor.QuoteIdent(r.column) + " = " + c.adaptor.Placeholder(len(*args))
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (c *Cursor) selectSQL(args *[]any) string {
	cols := c.table.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = c.adaptor.QuoteIdent(col.Name)
	}
	order := make([]string, len(c.table.PrimaryKey()))
	for i, k := range c.table.PrimaryKey() {
		order[i] = c.adaptor.QuoteIdent(k)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), c.adaptor.TableRef(c.table.Grain, c.table.Name))
	q += c.where(args)
	if len(order) > 0 {
		q += " ORDER BY " + strings.Join(order, ", ")
	}
	return q
}

// fetch reads the whole filtered set so that the connection is free for writes
// while the caller walks it.
func (c *Cursor) fetch(ctx context.Context) error {
	var args []any
	q := c.selectSQL(&args)
	rows, err := c.conn.Query(ctx, q, args...)
	if err != nil {
		return c.fail("select", q, err)
	}
	defer rows.Close()

	cols := c.table.Columns()
	var set []map[string]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return c.fail("scan", q, err)
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			v, err := convert(col.Kind, raw[i])
			if err != nil {
				return c.fail("scan", q, fmt.Errorf("%s: %w", col.Name, err))
			}
			rec[col.Name] = v
		}
		set = append(set, rec)
	}
	if err := rows.Err(); err != nil {
		return c.fail("select", q, err)
	}
	c.set = set
	c.pos = -1
	return nil
}

// NextInSet moves to the next record of the filtered set, ordered by primary key.
// The first call runs the query; it reports false once the set is exhausted.
func (c *Cursor) NextInSet(ctx context.Context) (bool, error) {
	if c.set == nil {
		if err := c.fetch(ctx); err != nil {
			return false, err
		}
		if c.set == nil {
			c.set = []map[string]any{}
		}
	}
	if c.pos+1 >= len(c.set) {
		return false, nil
	}
	c.pos++
	c.values = make(map[string]any, len(c.set[c.pos]))
	for k, v := range c.set[c.pos] {
		c.values[k] = v
	}
	return true, nil
}

// TryFirst positions on the first record of the filtered set. The buffer is
// cleared when the set is empty.
func (c *Cursor) TryFirst(ctx context.Context) (bool, error) {
	c.reset()
	ok, err := c.NextInSet(ctx)
	if err == nil && !ok {
		c.Clear()
	}
	return ok, err
}

// TryGet positions on the record with the given primary key, replacing the ranges.
func (c *Cursor) TryGet(ctx context.Context, key ...any) (bool, error) {
	pk := c.table.PrimaryKey()
	if len(key) != len(pk) {
		return false, fmt.Errorf("%s.%s: want %d key values, got %d", c.table.Grain, c.table.Name, len(pk), len(key))
	}
	c.ClearRanges()
	for i, k := range pk {
		if err := c.SetRange(k, key[i]); err != nil {
			return false, err
		}
	}
	return c.TryFirst(ctx)
}

func (c *Cursor) keyCondition(args *[]any) (string, error) {
	pk := c.table.PrimaryKey()
	conds := make([]string, len(pk))
	for i, k := range pk {
		v, ok := c.values[k]
		if !ok || v == nil {
			return "", fmt.Errorf("%s.%s.%s: %w", c.table.Grain, c.table.Name, k, ErrNoKey)
		}
		*args = append(*args, v)
		conds[i] = c.adaptor.QuoteIdent(k) + " = " + c.adaptor.Placeholder(len(*args))
	}
	return strings.Join(conds, " AND "), nil
}

func (c *Cursor) exists(ctx context.Context) (bool, error) {
	var args []any
	cond, err := c.keyCondition(&args)
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.adaptor.TableRef(c.table.Grain, c.table.Name), cond)
	var n int
	if err := c.conn.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return false, c.fail("select", q, err)
	}
	return n > 0, nil
}

// assigned lists the buffered columns in declaration order.
func (c *Cursor) assigned(skip func(string) bool) []string {
	var out []string
	for _, col := range c.table.Columns() {
		if _, ok := c.values[col.Name]; ok && !skip(col.Name) {
			out = append(out, col.Name)
		}
	}
	return out
}

// TryInsert inserts the record buffer unless a row with the same key exists,
// reporting whether a row was written. Unset columns take their defaults.
func (c *Cursor) TryInsert(ctx context.Context) (bool, error) {
	found, err := c.exists(ctx)
	if err != nil || found {
		return false, err
	}
	cols := c.assigned(func(string) bool { return false })
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, name := range cols {
		names[i] = c.adaptor.QuoteIdent(name)
		marks[i] = c.adaptor.Placeholder(i + 1)
		args[i] = c.values[name]
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", c.adaptor.TableRef(c.table.Grain, c.table.Name),
		strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := c.conn.Exec(ctx, q, args...); err != nil {
		return false, c.fail("insert", q, err)
	}
	return true, nil
}

// Update writes the non-key fields of the record buffer to the row with its key.
func (c *Cursor) Update(ctx context.Context) error {
	key := make(map[string]bool)
	for _, k := range c.table.PrimaryKey() {
		key[k] = true
	}
	cols := c.assigned(func(name string) bool { return key[name] })
	if len(cols) == 0 {
		return nil
	}
	var args []any
	sets := make([]string, len(cols))
	for i, name := range cols {
		args = append(args, c.values[name])
		sets[i] = c.adaptor.QuoteIdent(name) + " = " + c.adaptor.Placeholder(len(args))
	}
	cond, err := c.keyCondition(&args)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", c.adaptor.TableRef(c.table.Grain, c.table.Name), strings.Join(sets, ", "), cond)
	if _, err := c.conn.Exec(ctx, q, args...); err != nil {
		return c.fail("update", q, err)
	}
	return nil
}

func (c *Cursor) fail(op, q string, err error) error {
	return &QueryError{Operation: op, Table: c.table.Grain + "." + c.table.Name, Query: q, Cause: err}
}
