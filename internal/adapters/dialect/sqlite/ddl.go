package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// identityInline turns the definition of a sole integer key into a rowid alias.
func identityInline(def string) string {
	return def + " PRIMARY KEY AUTOINCREMENT"
}

func soleIntegerKey(t *score.Table, col *score.Column) bool {
	pk := t.PrimaryKey()
	return len(pk) == 1 && pk[0] == col.Name && col.Kind == score.KindInteger
}

func (a *Adaptor) createTableSQL(t *score.Table) (string, error) {
	id, ok := t.IdentityColumn()
	if !ok {
		return a.CreateTableSQL(t, nil)
	}
	if !soleIntegerKey(t, id) {
		return "", fmt.Errorf("identity column %s must be the sole integer primary key: %w", id.Name, dialect.ErrUnsupported)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", ref(t.Grain, t.Name))
	for i, col := range t.Columns() {
		def, err := a.ColumnDef(catalog.Describe(col))
		if err != nil {
			return "", err
		}
		if col.Identity() {
			def = identityInline(def)
		}
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteString("  " + def)
	}
	sb.WriteString("\n)")
	return sb.String(), nil
}

func (a *Adaptor) CreateTable(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	stmt, err := a.createTableSQL(t)
	if err != nil {
		return a.Fail(dialect.OpCreateTable, err)
	}
	return a.Exec(ctx, c, dialect.OpCreateTable, stmt)
}

func (a *Adaptor) DropTable(ctx context.Context, c *dialect.Conn, grain, table string) error {
	return a.Exec(ctx, c, dialect.OpDropTable, "DROP TABLE "+ref(grain, table))
}

// AddColumn uses ALTER TABLE when SQLite allows it and rebuilds the table otherwise:
// NOT NULL columns without a default and non-constant defaults cannot be added in place.
func (a *Adaptor) AddColumn(ctx context.Context, c *dialect.Conn, t *score.Table, col *score.Column) error {
	info := catalog.Describe(col)
	if (!info.Nullable && info.Default == "") || info.Default == score.DefaultNow || info.Identity {
		return a.rebuild(ctx, c, dialect.OpAddColumn, t.Grain, t.Name, func(s *shape) error {
			s.columns = append(s.columns, info)
			return nil
		})
	}
	def, err := a.ColumnDef(info)
	if err != nil {
		return a.Fail(dialect.OpAddColumn, err)
	}
	return a.Exec(ctx, c, dialect.OpAddColumn, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", ref(t.Grain, t.Name), def))
}

func (a *Adaptor) DropColumn(ctx context.Context, c *dialect.Conn, t *score.Table, column string) error {
	return a.Exec(ctx, c, dialect.OpDropColumn, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", ref(t.Grain, t.Name), quote(column)))
}

// AlterColumn rebuilds the table with the declared column definition.
func (a *Adaptor) AlterColumn(ctx context.Context, c *dialect.Conn, t *score.Table, col *score.Column, actual catalog.ColumnInfo) error {
	want := catalog.Describe(col)
	want.Identity = actual.Identity
	return a.rebuild(ctx, c, dialect.OpAlterColumn, t.Grain, t.Name, func(s *shape) error {
		for i := range s.columns {
			if s.columns[i].Name == col.Name {
				s.columns[i] = want
				return nil
			}
		}
		return fmt.Errorf("column %s not found", col.Name)
	})
}

func (a *Adaptor) DropPrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table, _ catalog.PKInfo) error {
	return a.rebuild(ctx, c, dialect.OpDropPrimaryKey, t.Grain, t.Name, func(s *shape) error {
		s.pk = nil
		for i := range s.columns {
			s.columns[i].Identity = false
		}
		return nil
	})
}

func (a *Adaptor) CreatePrimaryKey(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	return a.rebuild(ctx, c, dialect.OpCreatePrimaryKey, t.Grain, t.Name, func(s *shape) error {
		s.pk = t.PrimaryKey()
		return nil
	})
}

func (a *Adaptor) indexSQL(t *score.Table, idx *score.Index) []string {
	stmts := []string{fmt.Sprintf("CREATE INDEX %s ON %s (%s)", ref(idx.Grain, idx.Name), ref(t.Grain, t.Name), a.ColumnList(idx.Columns))}
	if a.Shadows.Wants(t, idx) {
		cols := make([]string, len(idx.Columns))
		for i, name := range idx.Columns {
			cols[i] = quote(name)
			if col, ok := t.Column(name); ok && col.Kind == score.KindString {
				cols[i] += " COLLATE NOCASE"
			}
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			ref(idx.Grain, a.Shadows.ShadowName(idx.Name)), ref(t.Grain, t.Name), strings.Join(cols, ", ")))
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

// CreateForeignKey rebuilds the owning table; SQLite cannot add constraints in place.
func (a *Adaptor) CreateForeignKey(ctx context.Context, c *dialect.Conn, fk *score.ForeignKey) error {
	info := catalog.FKInfo{
		Name: fk.Name, Table: fk.Table, Columns: fk.Columns,
		RefGrain: fk.RefGrain, RefTable: fk.RefTable, RefColumns: fk.RefColumns,
		OnDelete: fk.OnDelete, OnUpdate: fk.OnUpdate,
	}
	return a.rebuild(ctx, c, dialect.OpCreateForeignKey, fk.Grain, fk.Table, func(s *shape) error {
		s.fks = append(s.fks, info)
		return nil
	})
}

func (a *Adaptor) DropForeignKey(ctx context.Context, c *dialect.Conn, grain string, fk catalog.FKInfo) error {
	sig := fk.Signature()
	return a.rebuild(ctx, c, dialect.OpDropForeignKey, grain, fk.Table, func(s *shape) error {
		kept := s.fks[:0]
		for _, have := range s.fks {
			if have.Signature() != sig {
				kept = append(kept, have)
			}
		}
		s.fks = kept
		return nil
	})
}

// ManageAutoIncrement toggles AUTOINCREMENT on the rowid alias, rebuilding only on change.
func (a *Adaptor) ManageAutoIncrement(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	cols, err := a.IntrospectColumns(ctx, c, t.Grain, t.Name)
	if err != nil {
		return err
	}
	declared, hasIdentity := t.IdentityColumn()
	current := ""
	for _, ci := range cols {
		if ci.Identity {
			current = ci.Name
		}
	}
	want := ""
	if hasIdentity {
		if !soleIntegerKey(t, declared) {
			return a.Fail(dialect.OpAutoIncrement,
				fmt.Errorf("identity column %s must be the sole integer primary key: %w", declared.Name, dialect.ErrUnsupported))
		}
		want = declared.Name
	}
	if want == current {
		return nil
	}
	return a.rebuild(ctx, c, dialect.OpAutoIncrement, t.Grain, t.Name, func(s *shape) error {
		for i := range s.columns {
			s.columns[i].Identity = s.columns[i].Name == want
		}
		return nil
	})
}

func triggerName(t *score.Table) string {
	return physical(t.Grain, t.Name+"_upd")
}

// versioningSQL renders one AFTER UPDATE trigger that rejects a changed recversion and
// bumps it. The nested UPDATE does not re-enter the trigger while recursive_triggers is off.
func (a *Adaptor) versioningSQL(t *score.Table) string {
	table := ref(t.Grain, t.Name)
	v := quote(score.VersionColumn)
	return fmt.Sprintf(`CREATE TRIGGER %s AFTER UPDATE ON %s FOR EACH ROW
BEGIN
  SELECT RAISE(ABORT, 'record version check failure') WHERE OLD.%s <> NEW.%s;
  UPDATE %s SET %s = OLD.%s + 1 WHERE rowid = NEW.rowid;
END`, quote(triggerName(t)), table, v, v, table, v, v)
}

// UpdateVersioningTrigger installs the trigger for version-checked tables
// and removes it from tables that no longer declare version checking.
func (a *Adaptor) UpdateVersioningTrigger(ctx context.Context, c *dialect.Conn, t *score.Table) error {
	name := triggerName(t)
	exists, err := a.masterExists(ctx, c, "trigger", name)
	if err != nil {
		return err
	}
	switch {
	case t.VersionCheck && !exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger, a.versioningSQL(t))
	case !t.VersionCheck && exists:
		return a.Exec(ctx, c, dialect.OpVersionTrigger, "DROP TRIGGER "+quote(name))
	}
	return nil
}

// ResetIdentity rewrites the table's sqlite_sequence entry.
func (a *Adaptor) ResetIdentity(ctx context.Context, c *dialect.Conn, t *score.Table, value int64) error {
	name := physical(t.Grain, t.Name)
	if err := c.ExecDDL(ctx, dialect.OpResetIdentity, "DELETE FROM sqlite_sequence WHERE name = ?", name); err != nil {
		return err
	}
	return c.ExecDDL(ctx, dialect.OpResetIdentity, "INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", name, value-1)
}
