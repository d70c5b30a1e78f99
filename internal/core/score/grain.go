package score

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
)

// Fingerprint is the (length, checksum) pair over a grain's declaration source.
type Fingerprint struct {
	Length   int64
	Checksum uint32
}

// FingerprintOf computes the fingerprint of a grain source.
func FingerprintOf(src []byte) Fingerprint {
	return Fingerprint{Length: int64(len(src)), Checksum: crc32.ChecksumIEEE(src)}
}

// ChecksumHex is the persisted spelling of the checksum.
func (f Fingerprint) ChecksumHex() string {
	return fmt.Sprintf("%08X", f.Checksum)
}

// Grain is an independently versioned module of the score.
type Grain struct {
	Name        string
	Version     string
	Fingerprint Fingerprint
	// NativeSQL holds dialect-native blocks declared around the grain. The
	// migration engine refuses to run a grain that declares any.
	NativeSQL []string

	score    *Score
	tables   []*Table
	views    []*View
	seqs     []*Sequence
	objects  map[string]string
	seqIndex map[string]int
	indexes  map[string]string
	fkNames  map[string]bool
}

func newGrain(s *Score, name, version string, fp Fingerprint) *Grain {
	return &Grain{
		score:       s,
		Name:        name,
		Version:     version,
		Fingerprint: fp,
		objects:     make(map[string]string),
		seqIndex:    make(map[string]int),
		indexes:     make(map[string]string),
		fkNames:     make(map[string]bool),
	}
}

// AddTable declares an empty table.
func (g *Grain) AddTable(name string) (*Table, error) {
	obj := qualify(g.Name, name)
	if err := checkIdentifier(obj, name); err != nil {
		return nil, err
	}
	if used, ok := g.nameUsed(name); ok {
		return nil, invalid(obj, "name already used by %s", used)
	}
	t := newTable(g.Name, name)
	g.tables = append(g.tables, t)
	g.objects[name] = "table"
	return t, nil
}

// Table looks up a table by name.
func (g *Grain) Table(name string) (*Table, bool) {
	for _, t := range g.tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Tables returns the tables in declaration order.
func (g *Grain) Tables() []*Table {
	return append([]*Table(nil), g.tables...)
}

func (g *Grain) mustTable(name string) (*Table, error) {
	t, ok := g.Table(name)
	if !ok {
		return nil, invalid(qualify(g.Name, name), "no such table")
	}
	return t, nil
}

// AddColumn declares a column on table.
func (g *Grain) AddColumn(table string, c Column) error {
	t, err := g.mustTable(table)
	if err != nil {
		return err
	}
	if seq := c.SequenceName(); seq != "" {
		if _, ok := g.seqIndex[seq]; !ok {
			return invalid(t.object(c.Name), "unknown sequence %s", seq)
		}
	}
	if c.Identity() {
		name := table + IdentitySequenceSuffix
		if used, ok := g.nameUsed(name); ok {
			return invalid(t.object(c.Name), "identity sequence name %s already used by %s", name, used)
		}
	}
	return t.addColumn(c)
}

// DeleteColumn removes a column that no key, index, foreign key or view depends on.
func (g *Grain) DeleteColumn(table, column string) error {
	t, err := g.mustTable(table)
	if err != nil {
		return err
	}
	for _, v := range g.views {
		if v.Select.From.Table == table && (v.Select.From.Grain == "" || v.Select.From.Grain == g.Name) && v.references(column) {
			return invalid(t.object(column), "column is used by view %s", v.Name)
		}
	}
	return t.deleteColumn(column)
}

// SetPrimaryKey records the key columns. Columns may be declared afterwards;
// the key is checked by Finalize. The key of a table that foreign keys already
// reference cannot change.
func (g *Grain) SetPrimaryKey(table string, cols ...string) error {
	t, err := g.mustTable(table)
	if err != nil {
		return err
	}
	if refs := g.score.referencing(g.Name, table); len(refs) > 0 {
		if equalStrings(t.pk, cols) {
			return nil
		}
		fk := refs[0]
		return invalid(t.object(), "primary key is referenced by foreign key %s", qualify(fk.Grain, fk.Table, fk.Name))
	}
	return t.setPrimaryKey(cols)
}

// SetPrimaryKeyName overrides the default pk_<table> constraint name.
func (g *Grain) SetPrimaryKeyName(table, name string) error {
	t, err := g.mustTable(table)
	if err != nil {
		return err
	}
	if err := checkIdentifier(t.object(), name); err != nil {
		return err
	}
	t.pkName = name
	return nil
}

// Finalize completes primary key definitions of every table.
func (g *Grain) Finalize() error {
	for _, t := range g.tables {
		if err := t.finalizePrimaryKey(); err != nil {
			return err
		}
	}
	return nil
}

// AddIndex declares an index; index names are unique within the grain.
func (g *Grain) AddIndex(table, name string, cols ...string) error {
	t, err := g.mustTable(table)
	if err != nil {
		return err
	}
	obj := qualify(g.Name, name)
	if err := checkIdentifier(obj, name); err != nil {
		return err
	}
	if owner, ok := g.indexes[name]; ok {
		return invalid(obj, "index already declared on %s", owner)
	}
	if used, ok := g.nameUsed(name); ok {
		return invalid(obj, "name already used by %s", used)
	}
	if len(cols) == 0 {
		return invalid(obj, "index has no columns")
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if _, ok := t.Column(c); !ok {
			return invalid(obj, "unknown column %s", c)
		}
		if seen[c] {
			return invalid(obj, "column %s repeated", c)
		}
		seen[c] = true
	}
	t.indices = append(t.indices, &Index{Name: name, Grain: g.Name, Table: table, Columns: append([]string(nil), cols...)})
	g.indexes[name] = table
	return nil
}

// AddForeignKey declares a foreign key from table to the primary key of fk.RefGrain.fk.RefTable.
// The referenced table must already have a finalized primary key in s.
func (g *Grain) AddForeignKey(s *Score, table string, fk ForeignKey) error {
	t, err := g.mustTable(table)
	if err != nil {
		return err
	}
	if fk.RefGrain == "" {
		fk.RefGrain = g.Name
	}
	fk.Grain, fk.Table = g.Name, table
	if fk.Name == "" {
		fk.Name = g.foreignKeyName(table, fk.Columns)
	}
	obj := t.object(fk.Name)
	if err := checkIdentifier(obj, fk.Name); err != nil {
		return err
	}
	if g.fkNames[fk.Name] {
		return invalid(obj, "duplicate foreign key name")
	}
	if len(fk.Columns) == 0 {
		return invalid(obj, "foreign key has no columns")
	}
	ref, ok := s.Table(fk.RefGrain, fk.RefTable)
	if !ok {
		return invalid(obj, "referenced table %s does not exist", qualify(fk.RefGrain, fk.RefTable))
	}
	if !ref.pkFinalized {
		return invalid(obj, "referenced table %s has no finalized primary key", qualify(fk.RefGrain, fk.RefTable))
	}
	if len(ref.pk) != len(fk.Columns) {
		return invalid(obj, "foreign key has %d columns, referenced key has %d", len(fk.Columns), len(ref.pk))
	}
	for i, name := range fk.Columns {
		c, ok := t.Column(name)
		if !ok {
			return invalid(obj, "unknown column %s", name)
		}
		rc, _ := ref.Column(ref.pk[i])
		if !compatible(c, rc) {
			return invalid(obj, "column %s (%s) does not match referenced %s (%s)", c.Name, c.Kind, rc.Name, rc.Kind)
		}
		if (fk.OnDelete == FKSetNull || fk.OnUpdate == FKSetNull) && !c.Nullable {
			return invalid(obj, "SET NULL rule on NOT NULL column %s", c.Name)
		}
	}
	fk.Columns = append([]string(nil), fk.Columns...)
	fk.RefColumns = ref.PrimaryKey()
	t.fks = append(t.fks, &fk)
	g.fkNames[fk.Name] = true
	return nil
}

func (g *Grain) foreignKeyName(table string, cols []string) string {
	base := "fk_" + table + "_" + strings.Join(cols, "_")
	if len(base) > MaxIdentifierLength {
		base = base[:MaxIdentifierLength]
	}
	name := base
	for i := 2; g.fkNames[name]; i++ {
		suffix := fmt.Sprintf("%d", i)
		cut := len(base)
		if cut+len(suffix) > MaxIdentifierLength {
			cut = MaxIdentifierLength - len(suffix)
		}
		name = base[:cut] + suffix
	}
	return name
}

func compatible(a, b *Column) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindString {
		return a.Text.Unbounded == b.Text.Unbounded && a.Text.Length == b.Text.Length
	}
	return true
}

// AddSequence declares a sequence.
func (g *Grain) AddSequence(name string, opts SequenceOptions) (*Sequence, error) {
	if _, ok := g.seqIndex[name]; ok {
		return nil, invalid(qualify(g.Name, name), "duplicate sequence")
	}
	if used, ok := g.nameUsed(name); ok {
		return nil, invalid(qualify(g.Name, name), "name already used by %s", used)
	}
	seq, err := newSequence(g.Name, name, opts)
	if err != nil {
		return nil, err
	}
	g.seqIndex[name] = len(g.seqs)
	g.seqs = append(g.seqs, seq)
	g.objects[name] = "sequence"
	return seq, nil
}

// nameUsed describes the grain object already using name. Tables, views,
// sequences and indices share one namespace with the <table>_seq sequences
// backing identity columns.
func (g *Grain) nameUsed(name string) (string, bool) {
	if kind, ok := g.objects[name]; ok {
		return "a " + kind, true
	}
	if table, ok := g.indexes[name]; ok {
		return "an index of " + table, true
	}
	if base, ok := strings.CutSuffix(name, IdentitySequenceSuffix); ok {
		if t, ok := g.Table(base); ok {
			if _, ok := t.IdentityColumn(); ok {
				return "the identity sequence of " + base, true
			}
		}
	}
	return "", false
}

func (g *Grain) Sequence(name string) (*Sequence, bool) {
	i, ok := g.seqIndex[name]
	if !ok {
		return nil, false
	}
	return g.seqs[i], true
}

func (g *Grain) Sequences() []*Sequence {
	return append([]*Sequence(nil), g.seqs...)
}

// AddView declares a view of any kind after validating its query against s.
func (g *Grain) AddView(s *Score, v View) (*View, error) {
	obj := qualify(g.Name, v.Name)
	if used, ok := g.nameUsed(v.Name); ok {
		return nil, invalid(obj, "name already used by %s", used)
	}
	v.Grain = g.Name
	v.Select.Items = append([]SelectItem(nil), v.Select.Items...)
	if err := v.validate(s); err != nil {
		return nil, err
	}
	g.views = append(g.views, &v)
	g.objects[v.Name] = "view"
	return &v, nil
}

func (g *Grain) View(name string) (*View, bool) {
	for _, v := range g.views {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Views returns the views of the given kind in declaration order.
func (g *Grain) Views(kind ViewKind) []*View {
	var out []*View
	for _, v := range g.views {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// dependencies lists the other grains this grain's foreign keys and views point at.
func (g *Grain) dependencies() []string {
	set := make(map[string]bool)
	for _, t := range g.tables {
		for _, fk := range t.fks {
			if fk.RefGrain != g.Name {
				set[fk.RefGrain] = true
			}
		}
	}
	for _, v := range g.views {
		if v.Select.From.Grain != g.Name {
			set[v.Select.From.Grain] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (v *View) references(column string) bool {
	for _, it := range v.Select.Items {
		if !it.Star && it.Column.Column == column {
			return true
		}
	}
	for _, c := range v.Select.Where {
		if c.Left.Column == column {
			return true
		}
	}
	for _, c := range v.Select.GroupBy {
		if c.Column == column {
			return true
		}
	}
	return false
}
