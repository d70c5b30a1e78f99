package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Parameterized views are SQL functions returning TABLE; materialized views are tables.

func (a *Adaptor) ViewExists(ctx context.Context, c *dialect.Conn, grain, name string, kind score.ViewKind) (bool, error) {
	switch kind {
	case score.MaterializedView:
		return a.TableExists(ctx, c, grain, name)
	case score.ParameterizedView:
		return a.count(ctx, c, `SELECT COUNT(*) FROM pg_proc p JOIN pg_namespace n ON n.oid = p.pronamespace
			WHERE n.nspname = $1 AND p.proname = $2`, grain, name)
	}
	return a.count(ctx, c, "SELECT COUNT(*) FROM information_schema.views WHERE table_schema = $1 AND table_name = $2", grain, name)
}

func (a *Adaptor) functionSQL(s *score.Score, v *score.View) (string, error) {
	params := make([]string, len(v.Params))
	for i, p := range v.Params {
		kw, err := a.Registry.Keyword(catalog.ColumnInfo{Kind: p.Kind, Unbounded: true})
		if err != nil {
			return "", err
		}
		params[i] = quote(p.Name) + " " + kw
	}
	cols, err := v.OutputColumns(s)
	if err != nil {
		return "", err
	}
	out := make([]string, len(cols))
	for i := range cols {
		kw, err := a.Registry.Keyword(catalog.Describe(&cols[i]))
		if err != nil {
			return "", err
		}
		out[i] = quote(cols[i].Name) + " " + kw
	}
	body := a.RenderSelectWith(v.Select, func(name string) string {
		return fmt.Sprintf("$%d", dialect.ParamIndex(v, name))
	})
	return fmt.Sprintf("CREATE FUNCTION %s(%s) RETURNS TABLE (%s) AS $$ %s $$ LANGUAGE sql STABLE",
		ref(v.Grain, v.Name), strings.Join(params, ", "), strings.Join(out, ", "), body), nil
}

func (a *Adaptor) CreateView(ctx context.Context, c *dialect.Conn, s *score.Score, v *score.View) error {
	switch v.Kind {
	case score.MaterializedView:
		return a.Fail(dialect.OpCreateView, fmt.Errorf("materialized view %s is created as a table", v.Name))
	case score.ParameterizedView:
		stmt, err := a.functionSQL(s, v)
		if err != nil {
			return a.Fail(dialect.OpCreateView, err)
		}
		return a.Exec(ctx, c, dialect.OpCreateView, stmt)
	}
	return a.Exec(ctx, c, dialect.OpCreateView,
		fmt.Sprintf("CREATE VIEW %s AS %s", ref(v.Grain, v.Name), a.RenderSelect(v.Select)))
}

func (a *Adaptor) DropView(ctx context.Context, c *dialect.Conn, grain, name string, kind score.ViewKind) error {
	switch kind {
	case score.MaterializedView:
		return a.DropTable(ctx, c, grain, name)
	case score.ParameterizedView:
		return a.Exec(ctx, c, dialect.OpDropView, "DROP FUNCTION "+ref(grain, name))
	}
	return a.Exec(ctx, c, dialect.OpDropView, "DROP VIEW "+ref(grain, name))
}
