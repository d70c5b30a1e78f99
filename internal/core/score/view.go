package score

import "strings"

// Aggregate is an aggregate function applied by a select item.
type Aggregate string

const (
	AggNone  Aggregate = ""
	AggCount Aggregate = "COUNT"
	AggSum   Aggregate = "SUM"
	AggMin   Aggregate = "MIN"
	AggMax   Aggregate = "MAX"
	AggAvg   Aggregate = "AVG"
)

// ColumnRef names a column of the FROM table, optionally qualified by its alias.
type ColumnRef struct {
	Qualifier string
	Column    string
}

// SelectItem is one output column of a view.
type SelectItem struct {
	Alias     string
	Aggregate Aggregate
	// Star is set for COUNT(*).
	Star   bool
	Column ColumnRef
}

// OutputName is the name the item takes in the view's row type.
func (it SelectItem) OutputName() string {
	if it.Alias != "" {
		return it.Alias
	}
	return it.Column.Column
}

// Condition is one conjunct of a WHERE clause: column op (parameter | literal).
type Condition struct {
	Left  ColumnRef
	Op    string
	Param string
	// Literal is the SQL spelling of a constant operand (numbers bare, strings single-quoted).
	Literal string
}

// TableRef is the FROM clause.
type TableRef struct {
	Grain string
	Table string
	Alias string
}

// Select is the structured query of a view.
type Select struct {
	Items   []SelectItem
	From    TableRef
	Where   []Condition
	GroupBy []ColumnRef
}

// Aggregating reports whether the query groups rows.
func (s *Select) Aggregating() bool {
	if len(s.GroupBy) > 0 {
		return true
	}
	for _, it := range s.Items {
		if it.Aggregate != AggNone {
			return true
		}
	}
	return false
}

// ViewKind tags the view variants.
type ViewKind int

const (
	PlainView ViewKind = iota
	MaterializedView
	ParameterizedView
)

// Param is a typed parameter of a parameterized view.
type Param struct {
	Name string
	Kind ColumnKind
}

// View is a named query owned by a grain.
type View struct {
	Name   string
	Grain  string
	Kind   ViewKind
	Select Select
	Params []Param
}

var comparisonOps = map[string]bool{"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true}

// validate resolves the query against the score and enforces the aggregate rules.
func (v *View) validate(s *Score) error {
	obj := qualify(v.Grain, v.Name)
	if err := checkIdentifier(obj, v.Name); err != nil {
		return err
	}
	sel := &v.Select
	if sel.From.Grain == "" {
		sel.From.Grain = v.Grain
	}
	src, ok := s.Table(sel.From.Grain, sel.From.Table)
	if !ok {
		return invalid(obj, "unknown table %s", qualify(sel.From.Grain, sel.From.Table))
	}
	if len(sel.Items) == 0 {
		return invalid(obj, "empty select list")
	}
	resolve := func(ref ColumnRef) (*Column, error) {
		if ref.Qualifier != "" && ref.Qualifier != sel.From.Alias && ref.Qualifier != sel.From.Table {
			return nil, invalid(obj, "unknown qualifier %s", ref.Qualifier)
		}
		c, ok := src.Column(ref.Column)
		if !ok {
			return nil, invalid(obj, "unknown column %s", qualify(ref.Qualifier, ref.Column))
		}
		return c, nil
	}

	params := make(map[string]bool, len(v.Params))
	for _, p := range v.Params {
		if err := checkIdentifier(obj, p.Name); err != nil {
			return err
		}
		if params[p.Name] {
			return invalid(obj, "duplicate parameter %s", p.Name)
		}
		params[p.Name] = true
	}
	if v.Kind != ParameterizedView && len(v.Params) > 0 {
		return invalid(obj, "only parameterized views declare parameters")
	}

	grouped := make(map[string]bool, len(sel.GroupBy))
	for _, g := range sel.GroupBy {
		if _, err := resolve(g); err != nil {
			return err
		}
		grouped[g.Column] = true
	}

	names := make(map[string]bool, len(sel.Items))
	aggregating := sel.Aggregating()
	aggregates := 0
	for _, it := range sel.Items {
		switch it.Aggregate {
		case AggNone:
			if _, err := resolve(it.Column); err != nil {
				return err
			}
			if aggregating && !grouped[it.Column.Column] {
				return invalid(obj, "column %s must appear in GROUP BY or be aggregated", it.Column.Column)
			}
		case AggCount, AggSum, AggMin, AggMax, AggAvg:
			aggregates++
			if it.Alias == "" {
				return invalid(obj, "aggregate %s requires an alias", it.Aggregate)
			}
			if it.Star {
				if it.Aggregate != AggCount {
					return invalid(obj, "%s(*) is not allowed", it.Aggregate)
				}
				break
			}
			c, err := resolve(it.Column)
			if err != nil {
				return err
			}
			if (it.Aggregate == AggSum || it.Aggregate == AggAvg) && !c.Kind.Numeric() {
				return invalid(obj, "%s over %s column %s", it.Aggregate, c.Kind, c.Name)
			}
		default:
			return invalid(obj, "unknown aggregate %s", it.Aggregate)
		}
		name := it.OutputName()
		if err := checkIdentifier(obj, name); err != nil {
			return err
		}
		if names[name] {
			return invalid(obj, "duplicate output column %s", name)
		}
		names[name] = true
	}

	for _, cond := range sel.Where {
		if _, err := resolve(cond.Left); err != nil {
			return err
		}
		if !comparisonOps[cond.Op] {
			return invalid(obj, "unsupported operator %q", cond.Op)
		}
		switch {
		case cond.Param != "":
			if !params[cond.Param] {
				return invalid(obj, "undeclared parameter %s", cond.Param)
			}
		case cond.Literal == "":
			return invalid(obj, "condition on %s has no operand", cond.Left.Column)
		}
	}

	if v.Kind == MaterializedView {
		if aggregates == 0 || len(sel.GroupBy) == 0 {
			return invalid(obj, "materialized view requires GROUP BY and at least one aggregate")
		}
		if len(sel.Where) > 0 {
			return invalid(obj, "materialized view cannot filter rows")
		}
		for _, it := range sel.Items {
			if it.Aggregate != AggNone && it.Aggregate != AggSum && it.Aggregate != AggCount {
				return invalid(obj, "materialized view supports only SUM and COUNT, got %s", it.Aggregate)
			}
		}
		if names[SurrogateCount] {
			return invalid(obj, "output column %s is reserved", SurrogateCount)
		}
		selected := make(map[string]bool, len(sel.Items))
		for _, it := range sel.Items {
			if it.Aggregate == AggNone {
				selected[it.Column.Column] = true
			}
		}
		for _, g := range sel.GroupBy {
			if !selected[g.Column] {
				return invalid(obj, "group-by column %s must be selected", g.Column)
			}
		}
		if _, err := v.StorageTable(s); err != nil {
			return err
		}
	}
	return nil
}

// SurrogateCount is the row counter kept by materialized view storage.
const SurrogateCount = "surrogate_count"

// OutputColumns derives the row type of the view from its source table.
func (v *View) OutputColumns(s *Score) ([]Column, error) {
	src, ok := s.Table(v.Select.From.Grain, v.Select.From.Table)
	if !ok {
		return nil, invalid(qualify(v.Grain, v.Name), "unknown table %s", v.Select.From.Table)
	}
	out := make([]Column, 0, len(v.Select.Items))
	for _, it := range v.Select.Items {
		var col Column
		switch {
		case it.Aggregate == AggCount:
			col = IntegerColumn(it.OutputName())
		case it.Aggregate == AggAvg:
			col = FloatingColumn(it.OutputName())
		default:
			c, ok := src.Column(it.Column.Column)
			if !ok {
				return nil, invalid(qualify(v.Grain, v.Name), "unknown column %s", it.Column.Column)
			}
			col = *c
			col.Name = it.OutputName()
			col.Default = ""
			if c.Int != nil {
				col.Int = &IntegerSpec{}
			}
		}
		out = append(out, col)
	}
	return out, nil
}

// StorageTable is the physical table backing a materialized view.
// Group-by outputs form the primary key; aggregates default to zero.
func (v *View) StorageTable(s *Score) (*Table, error) {
	cols, err := v.OutputColumns(s)
	if err != nil {
		return nil, err
	}
	t := newTable(v.Grain, v.Name)
	t.VersionCheck = false
	var pk []string
	for i, c := range cols {
		it := v.Select.Items[i]
		if it.Aggregate == AggNone {
			c = c.NotNull()
			pk = append(pk, c.Name)
		} else {
			c = c.NotNull().WithDefault("0")
		}
		if err := t.addColumn(c); err != nil {
			return nil, err
		}
	}
	if err := t.addColumn(IntegerColumn(SurrogateCount).NotNull().WithDefault("0")); err != nil {
		return nil, err
	}
	if err := t.setPrimaryKey(pk); err != nil {
		return nil, err
	}
	if err := t.finalizePrimaryKey(); err != nil {
		return nil, err
	}
	return t, nil
}

// Describe renders the query in a dialect-neutral form, used for fingerprints and reports.
func (s *Select) Describe() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, it := range s.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		switch {
		case it.Star:
			b.WriteString(string(it.Aggregate) + "(*)")
		case it.Aggregate != AggNone:
			b.WriteString(string(it.Aggregate) + "(" + qualify(it.Column.Qualifier, it.Column.Column) + ")")
		default:
			b.WriteString(qualify(it.Column.Qualifier, it.Column.Column))
		}
		if it.Alias != "" {
			b.WriteString(" AS " + it.Alias)
		}
	}
	b.WriteString(" FROM " + qualify(s.From.Grain, s.From.Table))
	if s.From.Alias != "" {
		b.WriteString(" AS " + s.From.Alias)
	}
	for i, c := range s.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(qualify(c.Left.Qualifier, c.Left.Column) + " " + c.Op + " ")
		if c.Param != "" {
			b.WriteString("$" + c.Param)
		} else {
			b.WriteString(c.Literal)
		}
	}
	for i, g := range s.GroupBy {
		if i == 0 {
			b.WriteString(" GROUP BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(qualify(g.Qualifier, g.Column))
	}
	return b.String()
}
