package mysql

import (
	"context"
	"errors"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Server error numbers the adaptor tolerates.
const (
	errDatabaseExists = 1007
	errTriggerExists  = 1359
)

func hasCode(err error, code uint16) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == code
}

func autoIncrement(def string) string { return def + " AUTO_INCREMENT" }

func (a *Adaptor) CreateTable(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	stmt, err := a.CreateTableSQL(t, autoIncrement)
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
	def, err := a.ColumnDef(info)
	if err != nil {
		return a.Fail(dialect.OpAddColumn, err)
	}
	return a.Exec(ctx, c, dialect.OpAddColumn, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", ref(t.Grain, t.Name), def))
}

func (a *Adaptor) DropColumn(ctx context.Context, c *dialect.Conn, t *score.Table, column string) error {
	return a.Exec(ctx, c, dialect.OpDropColumn, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", ref(t.Grain, t.Name), quote(column)))
}

// modifySQL restates the full column definition, keeping AUTO_INCREMENT when identity is set.
func (a *Adaptor) modifySQL(t *score.Table, ci catalog.ColumnInfo) (string, error) {
	def, err := a.ColumnDef(ci)
	if err != nil {
		return "", err
	}
	if ci.Identity {
		def = autoIncrement(def)
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", ref(t.Grain, t.Name), def), nil
}

func (a *Adaptor) AlterColumn(ctx context.Context, c *dialect.Conn, t *score.Table, col *score.Column, actual catalog.ColumnInfo) error {
	want := catalog.Describe(col)
	want.Identity = actual.Identity
	stmt, err := a.modifySQL(t, want)
	if err != nil {
		return a.Fail(dialect.OpAlterColumn, err)
	}
	return a.Exec(ctx, c, dialect.OpAlterColumn, stmt)
}

func (a *Adaptor) DropPrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table, _ catalog.PKInfo) error {
	return a.Exec(ctx, c, dialect.OpDropPrimaryKey, fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", ref(t.Grain, t.Name)))
}

func (a *Adaptor) CreatePrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	return a.Exec(ctx, c, dialect.OpCreatePrimaryKey,
		fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", ref(t.Grain, t.Name), a.ColumnList(t.PrimaryKey())))
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
	return a.Exec(ctx, c, dialect.OpDropForeignKey,
		fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", ref(grain, fk.Table), quote(fk.Name)))
}

// ManageAutoIncrement moves AUTO_INCREMENT to the declared identity column.
func (a *Adaptor) ManageAutoIncrement(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	cols, err := a.IntrospectColumns(ctx, c, t.Grain, t.Name)
	if err != nil {
		return err
	}
	want := ""
	if id, ok := t.IdentityColumn(); ok {
		want = id.Name
	}
	var stmts []string
	for _, ci := range cols {
		if ci.Identity == (ci.Name == want) {
			continue
		}
		ci.Identity = ci.Name == want
		stmt, err := a.modifySQL(t, ci)
		if err != nil {
			return a.Fail(dialect.OpAutoIncrement, err)
		}
		stmts = append(stmts, stmt)
	}
	return a.Exec(ctx, c, dialect.OpAutoIncrement, stmts...)
}

func triggerName(t *score.Table) string { return t.Name + "_upd" }

func (a *Adaptor) versioningSQL(t *score.Table) string {
	v := quote(score.VersionColumn)
	return fmt.Sprintf(`CREATE TRIGGER %s BEFORE UPDATE ON %s FOR EACH ROW
BEGIN
  IF OLD.%s <> NEW.%s THEN
    SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'record version check failure';
  END IF;
  SET NEW.%s = NEW.%s + 1;
END`, ref(t.Grain, triggerName(t)), ref(t.Grain, t.Name), v, v, v, v)
}

func (a *Adaptor) UpdateVersioningTrigger(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	exists, err := a.count(ctx, c, `SELECT COUNT(*) FROM information_schema.TRIGGERS
		WHERE TRIGGER_SCHEMA = ? AND TRIGGER_NAME = ?`, t.Grain, triggerName(t))
	if err != nil {
		return err
	}
	switch {
	case t.VersionCheck && !exists:
		err := a.Exec(ctx, c, dialect.OpVersionTrigger, a.versioningSQL(t))
		if hasCode(err, errTriggerExists) {
			return nil
		}
		return err
	case !t.VersionCheck && exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger, "DROP TRIGGER "+ref(t.Grain, triggerName(t)))
	}
	return nil
}

func (a *Adaptor) ResetIdentity(ctx context.Context, c *dialect.Conn, t *score.Table, value int64) error {
	return a.Exec(ctx, c, dialect.OpResetIdentity, fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %d", ref(t.Grain, t.Name), value))
}

func (a *Adaptor) IntrospectSequence(ctx context.Context, c *dialect.Conn, grain, name string) (catalog.SequenceInfo, bool, error) {
	return a.RegistrySequence(ctx, c, grain, name)
}

func (a *Adaptor) CreateSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.RegistryCreateSequence(ctx, c, seq)
}

func (a *Adaptor) AlterSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.RegistryAlterSequence(ctx, c, seq)
}

func (a *Adaptor) ViewExists(ctx context.Context, c *dialect.Conn, grain, name string, kind score.ViewKind) (bool, error) {
	switch kind {
	case score.MaterializedView:
		return a.TableExists(ctx, c, grain, name)
	case score.ParameterizedView:
		return false, nil
	}
	return a.count(ctx, c, "SELECT COUNT(*) FROM information_schema.VIEWS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?", grain, name)
}

func (a *Adaptor) CreateView(ctx context.Context, c *dialect.Conn, _ *score.Score, v *score.View) error {
	switch v.Kind {
	case score.ParameterizedView:
		return dialect.Unsupported(dialect.MySQL, dialect.OpCreateView, "parameterized view "+v.Name)
	case score.MaterializedView:
		return a.Fail(dialect.OpCreateView, fmt.Errorf("materialized view %s is created as a table", v.Name))
	}
	return a.Exec(ctx, c, dialect.OpCreateView,
		fmt.Sprintf("CREATE VIEW %s AS %s", ref(v.Grain, v.Name), a.RenderSelect(v.Select)))
}

func (a *Adaptor) DropView(ctx context.Context, c *dialect.Conn, grain, name string, kind score.ViewKind) error {
	switch kind {
	case score.MaterializedView:
		return a.DropTable(ctx, c, grain, name)
	case score.ParameterizedView:
		return dialect.Unsupported(dialect.MySQL, dialect.OpDropView, "parameterized view "+name)
	}
	return a.Exec(ctx, c, dialect.OpDropView, "DROP VIEW "+ref(grain, name))
}
