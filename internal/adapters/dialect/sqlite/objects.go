package sqlite

import (
	"context"
	"fmt"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

func (a *Adaptor) IntrospectSequence(ctx context.Context, c *dialect.Conn, grain, name string) (catalog.SequenceInfo, bool, error) {
	return a.RegistrySequence(ctx, c, grain, name)
}

func (a *Adaptor) CreateSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.RegistryCreateSequence(ctx, c, seq)
}

func (a *Adaptor) AlterSequence(ctx context.Context, c *dialect.Conn, seq *score.Sequence) error {
	return a.RegistryAlterSequence(ctx, c, seq)
}

// Materialized views are stored as tables; only plain views exist as SQLite views.

func (a *Adaptor) ViewExists(ctx context.Context, c *dialect.Conn, grain, name string, kind score.ViewKind) (bool, error) {
	switch kind {
	case score.MaterializedView:
		return a.TableExists(ctx, c, grain, name)
	case score.ParameterizedView:
		return false, nil
	}
	return a.masterExists(ctx, c, "view", physical(grain, name))
}

func (a *Adaptor) CreateView(ctx context.Context, c *dialect.Conn, _ *score.Score, v *score.View) error {
	switch v.Kind {
	case score.ParameterizedView:
		return dialect.Unsupported(dialect.SQLite, dialect.OpCreateView, "parameterized view "+v.Name)
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
		return dialect.Unsupported(dialect.SQLite, dialect.OpDropView, "parameterized view "+name)
	}
	return a.Exec(ctx, c, dialect.OpDropView, "DROP VIEW "+ref(grain, name))
}
