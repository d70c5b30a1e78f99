package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

func (a *Adaptor) CreateTable(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	stmt, err := a.CreateTableSQL(t, nil)
	if err != nil {
		return a.Fail(dialect.OpCreateTable, err)
	}
	return a.Exec(ctx, c, dialect.OpCreateTable, stmt)
}

func (a *Adaptor) DropTable(ctx context.Context, c *dialect.Conn, grain, table string) error {
	return a.Exec(ctx, c, dialect.OpDropTable, "DROP TABLE "+ref(grain, table))
}

func (a *Adaptor) AddColumn(ctx context.Context, c *dialect.Conn, t *score.Table, col *score.Column) error {
	info := catalog.Describe(col)
	info.Identity = false
	def, err := a.ColumnDefIn(t.Grain, info)
	if err != nil {
		return a.Fail(dialect.OpAddColumn, err)
	}
	return a.Exec(ctx, c, dialect.OpAddColumn, fmt.Sprintf("ALTER TABLE %s ADD %s", ref(t.Grain, t.Name), def))
}

func dropConstraint(grain, table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", ref(grain, table), quote(name))
}

// A column bound to a default constraint cannot be dropped or retyped until
// the constraint goes.
func (a *Adaptor) DropColumn(ctx context.Context, c *dialect.Conn, t *score.Table, column string) error {
	dc, err := a.defaultConstraint(ctx, c, t.Grain, t.Name, column)
	if err != nil {
		return err
	}
	var stmts []string
	if dc != "" {
		stmts = append(stmts, dropConstraint(t.Grain, t.Name, dc))
	}
	stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", ref(t.Grain, t.Name), quote(column)))
	return a.Exec(ctx, c, dialect.OpDropColumn, stmts...)
}

func defaultName(table, column string) string { return "def_" + table + "_" + column }

func (a *Adaptor) defaultValue(grain string, ci catalog.ColumnInfo) (string, error) {
	if seq, ok := dialect.SequenceOf(ci.Default); ok {
		return nextValueFor(grain, seq), nil
	}
	return a.Registry.Default(ci)
}

// alterColumnSQL renders the statements bringing actual in line with col.
// bound names the default constraint currently attached to the column.
func (a *Adaptor) alterColumnSQL(t *score.Table, col *score.Column, actual catalog.ColumnInfo, bound string) ([]string, error) {
	want := catalog.Describe(col)
	var retype, renull, redefault bool
	for _, d := range actual.Diff(col) {
		switch d {
		case catalog.DiffType:
			retype = true
		case catalog.DiffNullable:
			renull = true
		case catalog.DiffDefault:
			redefault = true
		}
	}
	var stmts []string
	if (retype || redefault) && bound != "" {
		stmts = append(stmts, dropConstraint(t.Grain, t.Name, bound))
	}
	if retype || renull {
		kw, err := a.Registry.Keyword(want)
		if err != nil {
			return nil, err
		}
		null := "NOT NULL"
		if want.Nullable {
			null = "NULL"
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s %s", ref(t.Grain, t.Name), quote(col.Name), kw, null))
	}
	if (retype || redefault) && want.Default != "" {
		def, err := a.defaultValue(t.Grain, want)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s DEFAULT %s FOR %s",
			ref(t.Grain, t.Name), quote(defaultName(t.Name, col.Name)), def, quote(col.Name)))
	}
	return stmts, nil
}

func (a *Adaptor) AlterColumn(ctx context.Context, c *dialect.Conn, t *score.Table, col *score.Column, actual catalog.ColumnInfo) error {
	bound, err := a.defaultConstraint(ctx, c, t.Grain, t.Name, col.Name)
	if err != nil {
		return err
	}
	stmts, err := a.alterColumnSQL(t, col, actual, bound)
	if err != nil {
		return a.Fail(dialect.OpAlterColumn, err)
	}
	return a.Exec(ctx, c, dialect.OpAlterColumn, stmts...)
}

func (a *Adaptor) DropPrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table, pk catalog.PKInfo) error {
	return a.Exec(ctx, c, dialect.OpDropPrimaryKey, dropConstraint(t.Grain, t.Name, pk.Name))
}

func (a *Adaptor) CreatePrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	return a.Exec(ctx, c, dialect.OpCreatePrimaryKey,
		fmt.Sprintf("ALTER TABLE %s ADD %s", ref(t.Grain, t.Name), a.PrimaryKeyClause(t)))
}

func (a *Adaptor) CreateIndex(ctx context.Context, c *dialect.Conn, t *score.Table, idx *score.Index) error {
	return a.Exec(ctx, c, dialect.OpCreateIndex,
		fmt.Sprintf("CREATE INDEX %s ON %s (%s)", quote(idx.Name), ref(t.Grain, t.Name), a.ColumnList(idx.Columns)))
}

func (a *Adaptor) DropIndex(ctx context.Context, c *dialect.Conn, grain string, idx catalog.IndexInfo) error {
	return a.Exec(ctx, c, dialect.OpDropIndex, fmt.Sprintf("DROP INDEX %s ON %s", quote(idx.Name), ref(grain, idx.Table)))
}

func (a *Adaptor) CreateForeignKey(ctx context.Context, c *dialect.Conn, fk *score.ForeignKey) error {
	return a.Exec(ctx, c, dialect.OpCreateForeignKey, fmt.Sprintf("ALTER TABLE %s ADD %s", ref(fk.Grain, fk.Table),
		a.ForeignKeyClause(fk.Name, fk.Columns, fk.RefGrain, fk.RefTable, fk.RefColumns, fk.OnDelete, fk.OnUpdate)))
}

func (a *Adaptor) DropForeignKey(ctx context.Context, c *dialect.Conn, grain string, fk catalog.FKInfo) error {
	return a.Exec(ctx, c, dialect.OpDropForeignKey, dropConstraint(grain, fk.Table, fk.Name))
}

// ManageAutoIncrement feeds the identity column from <table>_seq, restarting the
// sequence past the largest key already stored.
func (a *Adaptor) ManageAutoIncrement(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	cols, err := a.IntrospectColumns(ctx, c, t.Grain, t.Name)
	if err != nil {
		return err
	}
	current := ""
	for _, ci := range cols {
		if ci.Identity {
			current = ci.Name
		}
	}
	want := ""
	if id, ok := t.IdentityColumn(); ok {
		want = id.Name
	}
	if current == want {
		return nil
	}
	var stmts []string
	if current != "" {
		dc, err := a.defaultConstraint(ctx, c, t.Grain, t.Name, current)
		if err != nil {
			return err
		}
		if dc != "" {
			stmts = append(stmts, dropConstraint(t.Grain, t.Name, dc))
		}
	}
	_, exists, err := a.IntrospectSequence(ctx, c, t.Grain, seqName(t.Name))
	if err != nil {
		return err
	}
	seq := ref(t.Grain, seqName(t.Name))
	if want == "" {
		if exists {
			stmts = append(stmts, "DROP SEQUENCE "+seq)
		}
		return a.Exec(ctx, c, dialect.OpAutoIncrement, stmts...)
	}
	dc, err := a.defaultConstraint(ctx, c, t.Grain, t.Name, want)
	if err != nil {
		return err
	}
	if dc != "" {
		stmts = append(stmts, dropConstraint(t.Grain, t.Name, dc))
	}
	q := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", quote(want), ref(t.Grain, t.Name))
	var next int64
	if err := c.QueryRow(ctx, q).Scan(&next); err != nil {
		return a.Introspection(q, err)
	}
	if exists {
		stmts = append(stmts, fmt.Sprintf("ALTER SEQUENCE %s RESTART WITH %d", seq, next))
	} else {
		stmts = append(stmts, fmt.Sprintf("CREATE SEQUENCE %s AS INT START WITH %d", seq, next))
	}
	stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s DEFAULT %s FOR %s",
		ref(t.Grain, t.Name), quote(defaultName(t.Name, want)), nextValueFor(t.Grain, seqName(t.Name)), quote(want)))
	return a.Exec(ctx, c, dialect.OpAutoIncrement, stmts...)
}

func triggerName(t *score.Table) string { return t.Name + "_upd" }

// versioningSQL renders an AFTER trigger that rejects stale versions and bumps the
// rest. The nested UPDATE does not re-enter it while RECURSIVE_TRIGGERS is off.
func (a *Adaptor) versioningSQL(t *score.Table) string {
	v := quote(score.VersionColumn)
	join := func(l, r string) string {
		parts := make([]string, len(t.PrimaryKey()))
		for i, k := range t.PrimaryKey() {
			parts[i] = fmt.Sprintf("%s.%s = %s.%s", l, quote(k), r, quote(k))
		}
		return strings.Join(parts, " AND ")
	}
	return fmt.Sprintf(`CREATE TRIGGER %s ON %s AFTER UPDATE AS
BEGIN
  SET NOCOUNT ON;
  IF EXISTS (SELECT 1 FROM inserted i JOIN deleted d ON %s WHERE i.%s <> d.%s)
  BEGIN
    RAISERROR('record version check failure', 16, 1);
    ROLLBACK TRANSACTION;
    RETURN;
  END
  UPDATE t SET %s = t.%s + 1 FROM %s t JOIN inserted i ON %s;
END`, ref(t.Grain, triggerName(t)), ref(t.Grain, t.Name), join("i", "d"), v, v,
		v, v, ref(t.Grain, t.Name), join("t", "i"))
}

func (a *Adaptor) UpdateVersioningTrigger(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	exists, err := a.count(ctx, c, "SELECT COUNT(*) FROM sys.triggers WHERE parent_id = OBJECT_ID(@p1) AND name = @p2",
		ref(t.Grain, t.Name), triggerName(t))
	if err != nil {
		return err
	}
	switch {
	case t.VersionCheck && !exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger, a.versioningSQL(t))
	case !t.VersionCheck && exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger, "DROP TRIGGER "+ref(t.Grain, triggerName(t)))
	}
	return nil
}

func (a *Adaptor) ResetIdentity(ctx context.Context, c *dialect.Conn, t *score.Table, value int64) error {
	return a.Exec(ctx, c, dialect.OpResetIdentity,
		fmt.Sprintf("ALTER SEQUENCE %s RESTART WITH %d", ref(t.Grain, seqName(t.Name)), value))
}

func sequenceOptions(seq *score.Sequence) string {
	cycle := "NO CYCLE"
	if seq.Cycle {
		cycle = "CYCLE"
	}
	return fmt.Sprintf("INCREMENT BY %d MINVALUE %d MAXVALUE %d %s", seq.Increment, seq.Min, seq.Max, cycle)
}

func (a *Adaptor) CreateSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.Exec(ctx, c, dialect.OpCreateSequence,
		fmt.Sprintf("CREATE SEQUENCE %s AS BIGINT START WITH %d %s", ref(seq.Grain, seq.Name), seq.Start, sequenceOptions(seq)))
}

func (a *Adaptor) AlterSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.Exec(ctx, c, dialect.OpAlterSequence,
		fmt.Sprintf("ALTER SEQUENCE %s %s", ref(seq.Grain, seq.Name), sequenceOptions(seq)))
}
