package postgres

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
	def, err := a.ColumnDefIn(t.Grain, catalog.Describe(col))
	if err != nil {
		return a.Fail(dialect.OpAddColumn, err)
	}
	return a.Exec(ctx, c, dialect.OpAddColumn, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", ref(t.Grain, t.Name), def))
}

func (a *Adaptor) DropColumn(ctx context.Context, c *dialect.Conn, t *score.Table, column string) error {
	return a.Exec(ctx, c, dialect.OpDropColumn, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", ref(t.Grain, t.Name), quote(column)))
}

// alterColumnSQL renders one ALTER TABLE carrying an action per difference.
func (a *Adaptor) alterColumnSQL(t *score.Table, col *score.Column, actual catalog.ColumnInfo) (string, error) {
	want := catalog.Describe(col)
	name := quote(col.Name)
	var actions []string
	for _, d := range actual.Diff(col) {
		switch d {
		case catalog.DiffType:
			kw, err := a.Registry.Keyword(want)
			if err != nil {
				return "", err
			}
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", name, kw, name, kw))
		case catalog.DiffNullable:
			if want.Nullable {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", name))
			} else {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", name))
			}
		case catalog.DiffDefault:
			if want.Default == "" {
				actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", name))
				continue
			}
			var def string
			if seq, ok := dialect.SequenceOf(want.Default); ok {
				def = nextval(t.Grain, seq)
			} else {
				var err error
				if def, err = a.Registry.Default(want); err != nil {
					return "", err
				}
			}
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", name, def))
		}
	}
	if len(actions) == 0 {
		return "", nil
	}
	return fmt.Sprintf("ALTER TABLE %s %s", ref(t.Grain, t.Name), strings.Join(actions, ", ")), nil
}

func (a *Adaptor) AlterColumn(ctx context.Context, c *dialect.Conn, t *score.Table, col *score.Column, actual catalog.ColumnInfo) error {
	stmt, err := a.alterColumnSQL(t, col, actual)
	if err != nil {
		return a.Fail(dialect.OpAlterColumn, err)
	}
	if stmt == "" {
		return nil
	}
	return a.Exec(ctx, c, dialect.OpAlterColumn, stmt)
}

func (a *Adaptor) DropPrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table, pk catalog.PKInfo) error {
	return a.Exec(ctx, c, dialect.OpDropPrimaryKey,
		fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", ref(t.Grain, t.Name), quote(pk.Name)))
}

func (a *Adaptor) CreatePrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	return a.Exec(ctx, c, dialect.OpCreatePrimaryKey,
		fmt.Sprintf("ALTER TABLE %s ADD %s", ref(t.Grain, t.Name), a.PrimaryKeyClause(t)))
}

func (a *Adaptor) indexSQL(t *score.Table, idx *score.Index) []string {
	stmts := []string{fmt.Sprintf("CREATE INDEX %s ON %s (%s)", quote(idx.Name), ref(t.Grain, t.Name), a.ColumnList(idx.Columns))}
	if a.Shadows.Wants(t, idx) {
		cols := make([]string, len(idx.Columns))
		for i, name := range idx.Columns {
			cols[i] = quote(name)
			if col, ok := t.Column(name); ok && col.Kind == score.KindString {
				cols[i] = "lower(" + cols[i] + ")"
			}
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			quote(a.Shadows.ShadowName(idx.Name)), ref(t.Grain, t.Name), strings.Join(cols, ", ")))
	}
	return stmts
}

func (a *Adaptor) CreateIndex(ctx context.Context, c *dialect.Conn, t *score.Table, idx *score.Index) error {
	return a.Exec(ctx, c, dialect.OpCreateIndex, a.indexSQL(t, idx)...)
}

func (a *Adaptor) DropIndex(ctx context.Context, c *dialect.Conn, grain string, idx catalog.IndexInfo) error {
	stmts := []string{"DROP INDEX " + ref(grain, idx.Name)}
	if idx.Shadow {
		stmts = append(stmts, "DROP INDEX IF EXISTS "+ref(grain, a.Shadows.ShadowName(idx.Name)))
	}
	return a.Exec(ctx, c, dialect.OpDropIndex, stmts...)
}

func (a *Adaptor) CreateForeignKey(ctx context.Context, c *dialect.Conn, fk *score.ForeignKey) error {
	return a.Exec(ctx, c, dialect.OpCreateForeignKey, fmt.Sprintf("ALTER TABLE %s ADD %s", ref(fk.Grain, fk.Table),
		a.ForeignKeyClause(fk.Name, fk.Columns, fk.RefGrain, fk.RefTable, fk.RefColumns, fk.OnDelete, fk.OnUpdate)))
}

func (a *Adaptor) DropForeignKey(ctx context.Context, c *dialect.Conn, grain string, fk catalog.FKInfo) error {
	return a.Exec(ctx, c, dialect.OpDropForeignKey,
		fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", ref(grain, fk.Table), quote(fk.Name)))
}

func (a *Adaptor) sequenceExists(ctx context.Context, c *dialect.Conn, grain, name string) (bool, error) {
	return a.count(ctx, c, `SELECT COUNT(*) FROM pg_class s JOIN pg_namespace n ON n.oid = s.relnamespace
		WHERE s.relkind = 'S' AND n.nspname = $1 AND s.relname = $2`, grain, name)
}

// ManageAutoIncrement backs the identity column with <table>_seq and a nextval default.
// When no identity is declared any such default is dropped together with the sequence.
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
	seq := ref(t.Grain, seqName(t.Name))
	table := ref(t.Grain, t.Name)
	var stmts []string
	if current != "" && current != want {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, quote(current)))
	}
	exists, err := a.sequenceExists(ctx, c, t.Grain, seqName(t.Name))
	if err != nil {
		return err
	}
	switch {
	case want == "" && exists:
		stmts = append(stmts, "DROP SEQUENCE "+seq)
	case want != "" && !exists:
		stmts = append(stmts, "CREATE SEQUENCE "+seq)
	}
	if want != "" && want != current {
		stmts = append(stmts,
			fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, quote(want), nextval(t.Grain, seqName(t.Name))),
			fmt.Sprintf("SELECT setval('%s', COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
				strings.ReplaceAll(seq, "'", "''"), quote(want), table))
	}
	return a.Exec(ctx, c, dialect.OpAutoIncrement, stmts...)
}

func triggerName(t *score.Table) string { return t.Name + "_upd" }

func (a *Adaptor) versioningSQL(t *score.Table) []string {
	fn := ref(t.Grain, triggerName(t))
	v := quote(score.VersionColumn)
	return []string{
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$
BEGIN
  IF OLD.%s <> NEW.%s THEN
    RAISE EXCEPTION 'record version check failure';
  END IF;
  NEW.%s := NEW.%s + 1;
  RETURN NEW;
END;
$$ LANGUAGE plpgsql`, fn, v, v, v, v),
		fmt.Sprintf("CREATE TRIGGER %s BEFORE UPDATE ON %s FOR EACH ROW EXECUTE PROCEDURE %s()",
			quote(triggerName(t)), ref(t.Grain, t.Name), fn),
	}
}

func (a *Adaptor) UpdateVersioningTrigger(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	exists, err := a.count(ctx, c, `SELECT COUNT(*) FROM information_schema.triggers
		WHERE event_object_schema = $1 AND event_object_table = $2 AND trigger_name = $3`, t.Grain, t.Name, triggerName(t))
	if err != nil {
		return err
	}
	switch {
	case t.VersionCheck && !exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger, a.versioningSQL(t)...)
	case !t.VersionCheck && exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger,
			fmt.Sprintf("DROP TRIGGER %s ON %s", quote(triggerName(t)), ref(t.Grain, t.Name)),
			fmt.Sprintf("DROP FUNCTION %s()", ref(t.Grain, triggerName(t))))
	}
	return nil
}

func (a *Adaptor) ResetIdentity(ctx context.Context, c *dialect.Conn, t *score.Table, value int64) error {
	seq := strings.ReplaceAll(ref(t.Grain, seqName(t.Name)), "'", "''")
	return a.Exec(ctx, c, dialect.OpResetIdentity, fmt.Sprintf("SELECT setval('%s', %d, false)", seq, value))
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
		fmt.Sprintf("CREATE SEQUENCE %s START WITH %d %s", ref(seq.Grain, seq.Name), seq.Start, sequenceOptions(seq)))
}

func (a *Adaptor) AlterSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.Exec(ctx, c, dialect.OpAlterSequence,
		fmt.Sprintf("ALTER SEQUENCE %s %s", ref(seq.Grain, seq.Name), sequenceOptions(seq)))
}
