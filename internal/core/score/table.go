package score

import (
	"fmt"
	"regexp"
)

// VersionColumn is the implicit optimistic-concurrency column of version-checked tables.
const VersionColumn = "recversion"

// MaxIdentifierLength bounds every object name in the score.
const MaxIdentifierLength = 30

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdentifier(object, name string) error {
	if !identifier.MatchString(name) {
		return invalid(object, "invalid identifier %q", name)
	}
	if len(name) > MaxIdentifierLength {
		return invalid(object, "identifier %q longer than %d characters", name, MaxIdentifierLength)
	}
	return nil
}

// FKRule is a foreign key delete/update action.
type FKRule int

const (
	FKNoAction FKRule = iota
	FKCascade
	FKSetNull
)

func (r FKRule) String() string {
	switch r {
	case FKCascade:
		return "CASCADE"
	case FKSetNull:
		return "SET NULL"
	default:
		return "NO ACTION"
	}
}

// ParseFKRule accepts the spellings used in grain sources and catalogs.
func ParseFKRule(s string) (FKRule, error) {
	switch normalizeRule(s) {
	case "", "NOACTION", "RESTRICT", "DEFAULT":
		return FKNoAction, nil
	case "CASCADE":
		return FKCascade, nil
	case "SETNULL":
		return FKSetNull, nil
	}
	return FKNoAction, fmt.Errorf("unknown foreign key rule %q", s)
}

func normalizeRule(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '_' || c == '-':
			continue
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// Index is a named, ordered list of columns of one table.
type Index struct {
	Name    string
	Grain   string
	Table   string
	Columns []string
}

// ForeignKey references the primary key of another table.
type ForeignKey struct {
	Name       string
	Grain      string
	Table      string
	Columns    []string
	RefGrain   string
	RefTable   string
	RefColumns []string
	OnDelete   FKRule
	OnUpdate   FKRule
}

// Table is owned by a grain and addressed by name. Mutations go through the owning Grain.
type Table struct {
	Name  string
	Grain string
	// VersionCheck installs the recversion column and its update trigger.
	VersionCheck bool

	columns  []*Column
	colIndex map[string]int

	pk          []string
	pkName      string
	pkFinalized bool

	indices []*Index
	fks     []*ForeignKey
}

func newTable(grain, name string) *Table {
	return &Table{
		Name:         name,
		Grain:        grain,
		VersionCheck: true,
		colIndex:     make(map[string]int),
		pkName:       "pk_" + name,
	}
}

func (t *Table) object(parts ...string) string {
	return qualify(append([]string{t.Grain, t.Name}, parts...)...)
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.colIndex[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// PrimaryKey returns the ordered key columns.
func (t *Table) PrimaryKey() []string {
	return append([]string(nil), t.pk...)
}

// PrimaryKeyName is the constraint name of the key.
func (t *Table) PrimaryKeyName() string { return t.pkName }

// PrimaryKeyFinalized reports whether the second phase of key definition has run.
func (t *Table) PrimaryKeyFinalized() bool { return t.pkFinalized }

func (t *Table) Indices() []*Index {
	return append([]*Index(nil), t.indices...)
}

func (t *Table) ForeignKeys() []*ForeignKey {
	return append([]*ForeignKey(nil), t.fks...)
}

// IdentityColumn returns the identity column, if one is declared.
func (t *Table) IdentityColumn() (*Column, bool) {
	for _, c := range t.columns {
		if c.Identity() {
			return c, true
		}
	}
	return nil, false
}

func (t *Table) inPrimaryKey(col string) bool {
	for _, c := range t.pk {
		if c == col {
			return true
		}
	}
	return false
}

func (t *Table) addColumn(c Column) error {
	obj := t.object(c.Name)
	if _, ok := t.colIndex[c.Name]; ok {
		return invalid(obj, "duplicate column")
	}
	if err := c.validate(obj); err != nil {
		return err
	}
	t.colIndex[c.Name] = len(t.columns)
	t.columns = append(t.columns, &c)
	return nil
}

func (t *Table) deleteColumn(name string) error {
	obj := t.object(name)
	i, ok := t.colIndex[name]
	if !ok {
		return invalid(obj, "no such column")
	}
	if t.inPrimaryKey(name) {
		return invalid(obj, "column is part of primary key %s", t.pkName)
	}
	for _, idx := range t.indices {
		if contains(idx.Columns, name) {
			return invalid(obj, "column is part of index %s", idx.Name)
		}
	}
	for _, fk := range t.fks {
		if contains(fk.Columns, name) {
			return invalid(obj, "column is part of foreign key %s", fk.Name)
		}
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	t.colIndex = make(map[string]int, len(t.columns))
	for j, c := range t.columns {
		t.colIndex[c.Name] = j
	}
	return nil
}

func (t *Table) setPrimaryKey(cols []string) error {
	if len(cols) == 0 {
		return invalid(t.object(), "primary key must not be empty")
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c] {
			return invalid(t.object(), "column %s repeated in primary key", c)
		}
		seen[c] = true
	}
	t.pk = append([]string(nil), cols...)
	t.pkFinalized = false
	return nil
}

// finalizePrimaryKey checks the recorded key against the declared columns.
func (t *Table) finalizePrimaryKey() error {
	if t.VersionCheck {
		if _, ok := t.colIndex[VersionColumn]; !ok {
			if err := t.addColumn(IntegerColumn(VersionColumn).NotNull().WithDefault("1")); err != nil {
				return err
			}
		}
	}
	if len(t.pk) == 0 {
		return invalid(t.object(), "table has no primary key")
	}
	for _, name := range t.pk {
		c, ok := t.Column(name)
		if !ok {
			return invalid(t.object(), "primary key column %s is not declared", name)
		}
		if c.Nullable {
			return invalid(t.object(name), "primary key column must be NOT NULL")
		}
		if c.Kind == KindString && c.Text.Unbounded {
			return invalid(t.object(name), "unbounded string cannot be part of primary key")
		}
		if c.Kind == KindBinary {
			return invalid(t.object(name), "binary column cannot be part of primary key")
		}
	}
	t.pkFinalized = true
	return nil
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
