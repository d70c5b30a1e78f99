// Package catalog holds read-only descriptors of objects observed in a live
// database. Descriptors mirror the metamodel shapes so that a diff is a field
// by field comparison; they live for one diff cycle only.
package catalog

import (
	"strconv"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// ColumnInfo is an observed column. Default uses the canonical spelling of score.NormalizeDefault;
// a sequence-fed default reads NEXTVAL(<sequence>).
type ColumnInfo struct {
	Name         string
	Kind         score.ColumnKind
	Length       int
	Unbounded    bool
	WithTimeZone bool
	Nullable     bool
	Default      string
	Identity     bool
}

// Describe builds the descriptor a declared column is expected to produce.
func Describe(c *score.Column) ColumnInfo {
	info := ColumnInfo{
		Name:     c.Name,
		Kind:     c.Kind,
		Nullable: c.Nullable,
		Default:  c.EffectiveDefault(),
		Identity: c.Identity(),
	}
	switch c.Kind {
	case score.KindString:
		info.Length = c.Text.Length
		info.Unbounded = c.Text.Unbounded
	case score.KindDateTime:
		info.WithTimeZone = c.Time != nil && c.Time.WithTimeZone
	}
	return info
}

// Difference names one aspect in which an observed column departs from its declaration.
type Difference string

const (
	DiffType     Difference = "type"
	DiffNullable Difference = "nullability"
	DiffDefault  Difference = "default"
)

// Diff lists the aspects that need an ALTER. Identity is reconciled separately.
func (ci ColumnInfo) Diff(c *score.Column) []Difference {
	want := Describe(c)
	var out []Difference
	if !ci.SameType(want) {
		out = append(out, DiffType)
	}
	if ci.Nullable != want.Nullable {
		out = append(out, DiffNullable)
	}
	if !sameDefault(ci.Kind, ci.Default, want.Default) {
		out = append(out, DiffDefault)
	}
	return out
}

// Reflects reports whether the observed column needs no ALTER.
func (ci ColumnInfo) Reflects(c *score.Column) bool {
	return len(ci.Diff(c)) == 0
}

// SameType compares kind and kind-specific payload.
func (ci ColumnInfo) SameType(other ColumnInfo) bool {
	if ci.Kind != other.Kind {
		return false
	}
	switch ci.Kind {
	case score.KindString:
		if ci.Unbounded || other.Unbounded {
			return ci.Unbounded == other.Unbounded
		}
		return ci.Length == other.Length
	case score.KindDateTime:
		return ci.WithTimeZone == other.WithTimeZone
	}
	return true
}

func sameDefault(kind score.ColumnKind, a, b string) bool {
	if a == b {
		return true
	}
	if kind == score.KindFloating && a != "" && b != "" {
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		return errA == nil && errB == nil && fa == fb
	}
	if kind == score.KindBinary {
		return strings.EqualFold(a, b)
	}
	return false
}

// PKInfo is an observed primary key.
type PKInfo struct {
	Name    string
	Columns []string
}

// Empty reports whether the table has no primary key.
func (p PKInfo) Empty() bool { return len(p.Columns) == 0 }

// Reflects compares the ordered key columns with the declared key.
func (p PKInfo) Reflects(t *score.Table) bool {
	return equalStrings(p.Columns, t.PrimaryKey())
}

// IndexInfo is an observed index; Shadow is set when its auxiliary shadow index exists too.
type IndexInfo struct {
	Name    string
	Table   string
	Columns []string
	Shadow  bool
}

// Reflects compares table and ordered columns.
func (i IndexInfo) Reflects(idx *score.Index) bool {
	return i.Table == idx.Table && equalStrings(i.Columns, idx.Columns)
}

// FKInfo is an observed foreign key.
type FKInfo struct {
	Name string
	// Grain owns the constrained table.
	Grain      string
	Table      string
	Columns    []string
	RefGrain   string
	RefTable   string
	RefColumns []string
	OnDelete   score.FKRule
	OnUpdate   score.FKRule
}

// Signature identifies a foreign key by what it constrains rather than by name.
func (f FKInfo) Signature() string {
	return signature(f.Table, f.Columns, f.RefGrain, f.RefTable, f.RefColumns, f.OnDelete, f.OnUpdate)
}

// SignatureOf is the signature a declared foreign key is expected to produce.
func SignatureOf(fk *score.ForeignKey) string {
	return signature(fk.Table, fk.Columns, fk.RefGrain, fk.RefTable, fk.RefColumns, fk.OnDelete, fk.OnUpdate)
}

// Involves reports whether the key constrains or references column of table.
func (f FKInfo) Involves(grain, table, column string) bool {
	if f.Table == table && contains(f.Columns, column) {
		return true
	}
	return f.RefGrain == grain && f.RefTable == table && contains(f.RefColumns, column)
}

func signature(table string, cols []string, refGrain, refTable string, refCols []string, onDelete, onUpdate score.FKRule) string {
	var b strings.Builder
	b.WriteString(table)
	b.WriteString("(")
	b.WriteString(strings.Join(cols, ","))
	b.WriteString(")->")
	b.WriteString(refGrain)
	b.WriteString(".")
	b.WriteString(refTable)
	b.WriteString("(")
	b.WriteString(strings.Join(refCols, ","))
	b.WriteString(") del=")
	b.WriteString(onDelete.String())
	b.WriteString(" upd=")
	b.WriteString(onUpdate.String())
	return b.String()
}

// SequenceInfo is an observed sequence.
type SequenceInfo struct {
	Start     int64
	Increment int64
	Min       int64
	Max       int64
	Cycle     bool
}

// Reflects compares the alterable parameters; the start value only matters at creation.
func (s SequenceInfo) Reflects(seq *score.Sequence) bool {
	return s.Increment == seq.Increment && s.Min == seq.Min && s.Max == seq.Max && s.Cycle == seq.Cycle
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
