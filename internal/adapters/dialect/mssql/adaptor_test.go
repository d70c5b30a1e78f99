package mssql

import (
	"testing"

	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orders(t *testing.T) (*score.Score, *score.Grain) {
	t.Helper()
	s := score.New()
	g, err := s.AddGrain("shop", "1.0", score.Fingerprint{})
	require.NoError(t, err)
	_, err = g.AddSequence("ord", score.SequenceOptions{})
	require.NoError(t, err)
	_, err = g.AddTable("orders")
	require.NoError(t, err)
	require.NoError(t, g.AddColumn("orders", score.IntegerColumn("id").AsIdentity()))
	require.NoError(t, g.AddColumn("orders", score.IntegerColumn("num").NotNull().WithSequence("ord")))
	require.NoError(t, g.AddColumn("orders", score.StringColumn("customer", 40).NotNull().WithDefault("anon")))
	require.NoError(t, g.AddColumn("orders", score.BooleanColumn("paid").NotNull().WithDefault("false")))
	require.NoError(t, g.SetPrimaryKey("orders", "id"))
	require.NoError(t, g.Finalize())
	return s, g
}

func TestCreateTableSQL(t *testing.T) {
	_, g := orders(t)
	tbl, _ := g.Table("orders")
	stmt, err := New().CreateTableSQL(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE [shop].[orders] (\n"+
		"  [id] INT NOT NULL,\n"+
		"  [num] INT DEFAULT NEXT VALUE FOR [shop].[ord] NOT NULL,\n"+
		"  [customer] NVARCHAR(40) DEFAULT N'anon' NOT NULL,\n"+
		"  [paid] BIT DEFAULT 0 NOT NULL,\n"+
		"  [recversion] INT DEFAULT 1 NOT NULL,\n"+
		"  CONSTRAINT [pk_orders] PRIMARY KEY ([id])\n"+
		")", stmt)
}

func TestAlterColumnSQL(t *testing.T) {
	_, g := orders(t)
	tbl, _ := g.Table("orders")
	col, _ := tbl.Column("customer")
	a := New()

	stmts, err := a.alterColumnSQL(tbl, col,
		catalog.ColumnInfo{Name: "customer", Kind: score.KindString, Length: 20, Nullable: true, Default: "x"}, "DF__orders__cust")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ALTER TABLE [shop].[orders] DROP CONSTRAINT [DF__orders__cust]",
		"ALTER TABLE [shop].[orders] ALTER COLUMN [customer] NVARCHAR(40) NOT NULL",
		"ALTER TABLE [shop].[orders] ADD CONSTRAINT [def_orders_customer] DEFAULT N'anon' FOR [customer]",
	}, stmts)

	stmts, err = a.alterColumnSQL(tbl, col, catalog.Describe(col), "DF__orders__cust")
	require.NoError(t, err)
	assert.Empty(t, stmts)

	paid, _ := tbl.Column("paid")
	stmts, err = a.alterColumnSQL(tbl, paid, catalog.ColumnInfo{Name: "paid", Kind: score.KindBoolean, Nullable: true, Default: "false"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE [shop].[orders] ALTER COLUMN [paid] BIT NOT NULL"}, stmts,
		"nullability alone leaves the default constraint in place")
}

func TestVersioningSQL(t *testing.T) {
	_, g := orders(t)
	tbl, _ := g.Table("orders")
	stmt := New().versioningSQL(tbl)
	assert.Contains(t, stmt, "CREATE TRIGGER [shop].[orders_upd] ON [shop].[orders] AFTER UPDATE AS")
	assert.Contains(t, stmt, "JOIN deleted d ON i.[id] = d.[id] WHERE i.[recversion] <> d.[recversion]")
	assert.Contains(t, stmt, "UPDATE t SET [recversion] = t.[recversion] + 1 FROM [shop].[orders] t JOIN inserted i ON t.[id] = i.[id]")
}

func TestFunctionSQL(t *testing.T) {
	s, g := orders(t)
	v, err := g.AddView(s, score.View{
		Name:   "by_customer",
		Kind:   score.ParameterizedView,
		Params: []score.Param{{Name: "who", Kind: score.KindString}},
		Select: score.Select{
			Items: []score.SelectItem{{Column: score.ColumnRef{Column: "id"}}},
			From:  score.TableRef{Table: "orders"},
			Where: []score.Condition{{Left: score.ColumnRef{Column: "customer"}, Op: "=", Param: "who"}},
		},
	})
	require.NoError(t, err)
	stmt, err := New().functionSQL(v)
	require.NoError(t, err)
	assert.Equal(t, "CREATE FUNCTION [shop].[by_customer](@who NVARCHAR(MAX)) RETURNS TABLE AS RETURN ("+
		"SELECT [orders].[id] AS [id] FROM [shop].[orders] AS [orders] WHERE [orders].[customer] = @who)", stmt)
}

func TestKindOf(t *testing.T) {
	ci, err := kindOf("nvarchar", 80)
	require.NoError(t, err)
	assert.Equal(t, 40, ci.Length)

	ci, err = kindOf("nvarchar", -1)
	require.NoError(t, err)
	assert.True(t, ci.Unbounded)

	ci, err = kindOf("datetimeoffset", 10)
	require.NoError(t, err)
	assert.True(t, ci.WithTimeZone)

	_, err = kindOf("geography", 0)
	assert.Error(t, err)
}

func TestNormalizeDefault(t *testing.T) {
	tests := []struct {
		kind score.ColumnKind
		raw  string
		want string
	}{
		{score.KindInteger, "((-5))", "-5"},
		{score.KindInteger, "(NEXT VALUE FOR [shop].[ord])", "NEXTVAL(ord)"},
		{score.KindString, "(N'it''s')", "it's"},
		{score.KindFloating, "((1.50))", "1.5"},
		{score.KindBoolean, "((1))", "true"},
		{score.KindDateTime, "(getdate())", score.DefaultNow},
		{score.KindDateTime, "('20240131')", "20240131"},
		{score.KindDateTime, "('2024-01-31 00:00:00')", "20240131"},
		{score.KindBinary, "(0xab0f)", "0xAB0F"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDefault(tt.kind, tt.raw))
		})
	}
}

func TestRendering(t *testing.T) {
	a := New()
	assert.Equal(t, "[a]]b]", a.QuoteIdent("a]b"))
	assert.Equal(t, "@p2", a.Placeholder(2))
	lit, err := a.TranslateDateLiteral("20240131")
	require.NoError(t, err)
	assert.Equal(t, "'20240131'", lit)
	_, err = a.TranslateDateLiteral("2024-01-31")
	assert.Error(t, err)
}
