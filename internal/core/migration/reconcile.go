package migration

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// reconciler applies one grain's declaration to the database. Objects of the
// grain that are no longer declared are left in place.
type reconciler struct {
	a dialect.Adaptor
	c *dialect.Conn
	s *score.Score
	g *score.Grain

	// tables holds the declared tables followed by materialized view storage.
	tables   []*score.Table
	declared map[string]*score.Table

	// detached holds keys of other grains dropped while a referenced key changes.
	detached []catalog.FKInfo
	unrestored []unrestoredKey
}

// unrestoredKey is a detached key that could not be recreated.
type unrestoredKey struct {
	info catalog.FKInfo
	err  error
}

// tableState is what introspection found for a table that already exists.
type tableState struct {
	columns map[string]catalog.ColumnInfo
	order   []string
	pk      catalog.PKInfo
	// changed lists columns whose type or nullability differ from the declaration.
	changed map[string]bool
	// retyped lists columns whose type differs.
	retyped map[string]bool
}

func (ts *tableState) pkChanged(t *score.Table) bool {
	return !ts.pk.Reflects(t)
}

// keyDisturbed reports whether the live key is rebuilt or one of its columns retyped.
func (ts *tableState) keyDisturbed(t *score.Table) bool {
	if ts.pkChanged(t) {
		return true
	}
	for _, col := range ts.pk.Columns {
		if ts.retyped[col] {
			return true
		}
	}
	return false
}

func newReconciler(a dialect.Adaptor, c *dialect.Conn, s *score.Score, g *score.Grain) (*reconciler, error) {
	r := &reconciler{a: a, c: c, s: s, g: g, declared: make(map[string]*score.Table)}
	r.tables = append(r.tables, g.Tables()...)
	for _, v := range g.Views(score.MaterializedView) {
		t, err := v.StorageTable(s)
		if err != nil {
			return nil, err
		}
		r.tables = append(r.tables, t)
	}
	for _, t := range r.tables {
		r.declared[t.Name] = t
	}
	return r, nil
}

func (r *reconciler) run(ctx context.Context) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	if err := r.sequences(ctx); err != nil {
		return err
	}
	if err := r.dropViews(ctx); err != nil {
		return err
	}

	states := make(map[string]*tableState)
	for _, t := range r.tables {
		exists, err := r.a.TableExists(ctx, r.c, r.g.Name, t.Name)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		st, err := r.inspect(ctx, t)
		if err != nil {
			return err
		}
		states[t.Name] = st
	}

	fks, err := r.dropForeignKeys(ctx, states)
	if err != nil {
		return err
	}
	indices, err := r.dropIndices(ctx, states)
	if err != nil {
		return err
	}
	if err := r.detachReferencingKeys(ctx, states); err != nil {
		return err
	}

	for _, t := range r.tables {
		st, ok := states[t.Name]
		if !ok {
			err = r.createTable(ctx, t)
		} else {
			err = r.reconcileTable(ctx, t, st)
		}
		if err != nil {
			return err
		}
	}

	if err := r.createIndices(ctx, indices); err != nil {
		return err
	}
	if err := r.createForeignKeys(ctx, fks); err != nil {
		return err
	}
	r.restoreReferencingKeys(ctx)
	if err := r.createViews(ctx); err != nil {
		return err
	}
	return r.refreshMaterialized(ctx)
}

func (r *reconciler) ensureSchema(ctx context.Context) error {
	ok, err := r.a.SchemaExists(ctx, r.c, r.g.Name)
	if err != nil || ok {
		return err
	}
	return r.a.CreateSchema(ctx, r.c, r.g.Name)
}

// sequences creates missing sequences and realigns the alterable parameters of existing ones.
func (r *reconciler) sequences(ctx context.Context) error {
	for _, seq := range r.g.Sequences() {
		info, ok, err := r.a.IntrospectSequence(ctx, r.c, r.g.Name, seq.Name)
		if err != nil {
			return err
		}
		switch {
		case !ok:
			err = r.a.CreateSequence(ctx, r.c, seq)
		case !info.Reflects(seq):
			err = r.a.AlterSequence(ctx, r.c, seq)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// inspect reads the live shape of t and classifies its column differences.
func (r *reconciler) inspect(ctx context.Context, t *score.Table) (*tableState, error) {
	cols, err := r.a.IntrospectColumns(ctx, r.c, r.g.Name, t.Name)
	if err != nil {
		return nil, err
	}
	pk, err := r.a.IntrospectPrimaryKey(ctx, r.c, r.g.Name, t.Name)
	if err != nil {
		return nil, err
	}
	st := &tableState{
		columns: make(map[string]catalog.ColumnInfo, len(cols)),
		pk:      pk,
		changed: make(map[string]bool),
		retyped: make(map[string]bool),
	}
	for _, ci := range cols {
		st.columns[ci.Name] = ci
		st.order = append(st.order, ci.Name)
		col, ok := t.Column(ci.Name)
		if !ok {
			continue
		}
		for _, d := range ci.Diff(col) {
			switch d {
			case catalog.DiffType:
				st.retyped[ci.Name] = true
				st.changed[ci.Name] = true
			case catalog.DiffNullable:
				st.changed[ci.Name] = true
			}
		}
	}
	return st, nil
}

// dropForeignKeys removes keys of declared tables that are no longer declared,
// that point at a key about to be rebuilt, or that cover a column about to be
// retyped. It returns the signatures still in place.
func (r *reconciler) dropForeignKeys(ctx context.Context, states map[string]*tableState) (map[string]bool, error) {
	actual, err := r.a.IntrospectForeignKeys(ctx, r.c, r.g.Name)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool)
	for _, t := range r.tables {
		for _, fk := range t.ForeignKeys() {
			want[catalog.SignatureOf(fk)] = true
		}
	}
	kept := make(map[string]bool, len(actual))
	for _, fk := range actual {
		if _, ok := r.declared[fk.Table]; !ok {
			continue
		}
		if want[fk.Signature()] && !r.fkDisturbed(fk, states) {
			kept[fk.Signature()] = true
			continue
		}
		if err := r.a.DropForeignKey(ctx, r.c, r.g.Name, fk); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

func (r *reconciler) fkDisturbed(fk catalog.FKInfo, states map[string]*tableState) bool {
	if fk.RefGrain == r.g.Name {
		if st, ok := states[fk.RefTable]; ok && st.pkChanged(r.declared[fk.RefTable]) {
			return true
		}
	}
	for name, st := range states {
		for col := range st.retyped {
			if fk.Involves(r.g.Name, name, col) {
				return true
			}
		}
	}
	return false
}

// detachReferencingKeys drops the keys other grains hold on a table whose
// primary key is about to be rebuilt or retyped.
func (r *reconciler) detachReferencingKeys(ctx context.Context, states map[string]*tableState) error {
	for _, t := range r.tables {
		st, ok := states[t.Name]
		if !ok || st.pk.Empty() || !st.keyDisturbed(t) {
			continue
		}
		incoming, err := r.a.IntrospectReferencingKeys(ctx, r.c, r.g.Name, t.Name)
		if err != nil {
			return err
		}
		for _, fk := range incoming {
			if err := r.a.DropForeignKey(ctx, r.c, fk.Grain, fk); err != nil {
				return err
			}
			r.detached = append(r.detached, fk)
		}
	}
	return nil
}

// restoreReferencingKeys recreates the detached keys against the new primary
// keys. A key that cannot be recreated is left to its own grain.
func (r *reconciler) restoreReferencingKeys(ctx context.Context) {
	for _, info := range r.detached {
		fk, ok := r.referencingKey(info)
		if !ok {
			r.unrestored = append(r.unrestored, unrestoredKey{info: info,
				err: fmt.Errorf("referenced key is now %v", r.declared[info.RefTable].PrimaryKey())})
			continue
		}
		if err := r.a.CreateForeignKey(ctx, r.c, fk); err != nil {
			r.unrestored = append(r.unrestored, unrestoredKey{info: info, err: err})
		}
	}
}

// referencingKey picks what to recreate for a detached key: its current
// declaration when that still constrains the same columns, else the observed
// key when it still fits the rebuilt primary key.
func (r *reconciler) referencingKey(info catalog.FKInfo) (*score.ForeignKey, bool) {
	if owner, ok := r.s.Table(info.Grain, info.Table); ok {
		for _, fk := range owner.ForeignKeys() {
			if fk.RefGrain == info.RefGrain && fk.RefTable == info.RefTable && slices.Equal(fk.Columns, info.Columns) {
				return fk, true
			}
		}
	}
	target, ok := r.declared[info.RefTable]
	if !ok || !slices.Equal(info.RefColumns, target.PrimaryKey()) {
		return nil, false
	}
	return &score.ForeignKey{
		Name: info.Name, Grain: info.Grain, Table: info.Table, Columns: info.Columns,
		RefGrain: info.RefGrain, RefTable: info.RefTable, RefColumns: info.RefColumns,
		OnDelete: info.OnDelete, OnUpdate: info.OnUpdate,
	}, true
}

// dropIndices removes indices of declared tables that are no longer declared,
// no longer match, or cover a column about to change. It returns the names still in place.
func (r *reconciler) dropIndices(ctx context.Context, states map[string]*tableState) (map[string]bool, error) {
	actual, err := r.a.IntrospectIndices(ctx, r.c, r.g.Name)
	if err != nil {
		return nil, err
	}
	want := make(map[string]*score.Index)
	for _, t := range r.tables {
		for _, idx := range t.Indices() {
			want[idx.Name] = idx
		}
	}
	kept := make(map[string]bool, len(actual))
	for _, info := range actual {
		if _, ok := r.declared[info.Table]; !ok {
			continue
		}
		idx, ok := want[info.Name]
		if ok && info.Reflects(idx) && !touches(info.Columns, states[info.Table]) {
			kept[info.Name] = true
			continue
		}
		if err := r.a.DropIndex(ctx, r.c, r.g.Name, info); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

func touches(cols []string, st *tableState) bool {
	if st == nil {
		return false
	}
	for _, c := range cols {
		if st.changed[c] {
			return true
		}
	}
	return false
}

func (r *reconciler) createTable(ctx context.Context, t *score.Table) error {
	if err := r.a.CreateTable(ctx, r.c, t); err != nil {
		return err
	}
	if err := r.a.ManageAutoIncrement(ctx, r.c, t); err != nil {
		return err
	}
	return r.a.UpdateVersioningTrigger(ctx, r.c, t)
}

// reconcileTable applies column, primary key, identity and versioning changes to an existing table.
func (r *reconciler) reconcileTable(ctx context.Context, t *score.Table, st *tableState) error {
	rebuildPK := st.pkChanged(t)
	if rebuildPK && !st.pk.Empty() {
		if err := r.a.DropPrimaryKey(ctx, r.c, t, st.pk); err != nil {
			return err
		}
	}
	for _, name := range st.order {
		if _, ok := t.Column(name); ok {
			continue
		}
		if err := r.a.DropColumn(ctx, r.c, t, name); err != nil {
			return err
		}
	}
	for _, col := range t.Columns() {
		actual, ok := st.columns[col.Name]
		if !ok {
			if err := r.a.AddColumn(ctx, r.c, t, col); err != nil {
				return err
			}
			continue
		}
		if len(actual.Diff(col)) == 0 {
			continue
		}
		if err := r.a.AlterColumn(ctx, r.c, t, col, actual); err != nil {
			return err
		}
	}
	if rebuildPK {
		if err := r.a.CreatePrimaryKey(ctx, r.c, t); err != nil {
			return err
		}
	}
	if err := r.a.ManageAutoIncrement(ctx, r.c, t); err != nil {
		return err
	}
	return r.a.UpdateVersioningTrigger(ctx, r.c, t)
}

func (r *reconciler) createIndices(ctx context.Context, kept map[string]bool) error {
	for _, t := range r.tables {
		for _, idx := range t.Indices() {
			if kept[idx.Name] {
				continue
			}
			if err := r.a.CreateIndex(ctx, r.c, t, idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// createForeignKeys runs after every table of the grain exists so keys between
// them never reference a missing table.
func (r *reconciler) createForeignKeys(ctx context.Context, kept map[string]bool) error {
	for _, t := range r.tables {
		for _, fk := range t.ForeignKeys() {
			if kept[catalog.SignatureOf(fk)] {
				continue
			}
			if err := r.a.CreateForeignKey(ctx, r.c, fk); err != nil {
				return err
			}
		}
	}
	return nil
}

// queryViews are the views backed by a stored query rather than a table.
func (r *reconciler) queryViews() []*score.View {
	return append(r.g.Views(score.PlainView), r.g.Views(score.ParameterizedView)...)
}

// dropViews removes the declared query views before tables change underneath them.
func (r *reconciler) dropViews(ctx context.Context) error {
	for _, v := range r.queryViews() {
		exists, err := r.a.ViewExists(ctx, r.c, r.g.Name, v.Name, v.Kind)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := r.a.DropView(ctx, r.c, r.g.Name, v.Name, v.Kind); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) createViews(ctx context.Context) error {
	for _, v := range r.queryViews() {
		if err := r.a.CreateView(ctx, r.c, r.s, v); err != nil {
			return err
		}
	}
	return nil
}

// refreshMaterialized recomputes the storage of every materialized view.
func (r *reconciler) refreshMaterialized(ctx context.Context) error {
	for _, v := range r.g.Views(score.MaterializedView) {
		sel := v.Select
		sel.Items = append(append([]score.SelectItem(nil), sel.Items...),
			score.SelectItem{Alias: score.SurrogateCount, Aggregate: score.AggCount, Star: true})
		cols := make([]string, len(sel.Items))
		for i, it := range sel.Items {
			cols[i] = r.a.QuoteIdent(it.OutputName())
		}
		storage := r.a.TableRef(v.Grain, v.Name)
		stmts := []string{
			"DELETE FROM " + storage,
			fmt.Sprintf("INSERT INTO %s (%s) %s", storage, strings.Join(cols, ", "), r.a.RenderSelect(sel)),
		}
		for _, stmt := range stmts {
			if _, err := r.c.Exec(ctx, stmt); err != nil {
				return dialect.Wrap(r.a.Name(), dialect.OpCreateView, stmt, err)
			}
		}
	}
	return nil
}
