package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Parameterized views are inline table-valued functions.

func (a *Adaptor) ViewExists(ctx context.Context, c *dialect.Conn, grain, name string, kind score.ViewKind) (bool, error) {
	switch kind {
	case score.MaterializedView:
		return a.TableExists(ctx, c, grain, name)
	case score.ParameterizedView:
		return a.count(ctx, c, "SELECT COUNT(*) FROM sys.objects WHERE SCHEMA_NAME(schema_id) = @p1 AND name = @p2 AND type = 'IF'", grain, name)
	}
	return a.count(ctx, c, "SELECT COUNT(*) FROM sys.views WHERE SCHEMA_NAME(schema_id) = @p1 AND name = @p2", grain, name)
}

func paramName(name string) string { return "@" + name }

func (a *Adaptor) functionSQL(v *score.View) (string, error) {
	params := make([]string, len(v.Params))
	for i, p := range v.Params {
		kw, err := a.Registry.Keyword(catalog.ColumnInfo{Kind: p.Kind, Unbounded: true})
		if err != nil {
			return "", err
		}
		params[i] = paramName(p.Name) + " " + kw
	}
	body := a.RenderSelectWith(v.Select, paramName)
	return fmt.Sprintf("CREATE FUNCTION %s(%s) RETURNS TABLE AS RETURN (%s)",
		ref(v.Grain, v.Name), strings.Join(params, ", "), body), nil
}

func (a *Adaptor) CreateView(ctx context.Context, c *dialect.Conn, _ *score.Score, v *score.View) error {
	switch v.Kind {
	case score.MaterializedView:
		return a.Fail(dialect.OpCreateView, fmt.Errorf("materialized view %s is created as a table", v.Name))
	case score.ParameterizedView:
		stmt, err := a.functionSQL(v)
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
