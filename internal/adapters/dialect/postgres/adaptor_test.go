package postgres

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
	require.NoError(t, g.AddColumn("orders", score.FloatingColumn("total")))
	require.NoError(t, g.SetPrimaryKey("orders", "id"))
	require.NoError(t, g.Finalize())
	require.NoError(t, g.AddIndex("orders", "idx_customer", "customer", "total"))
	return s, g
}

func TestCreateTableSQL(t *testing.T) {
	_, g := orders(t)
	tbl, _ := g.Table("orders")
	a := New()
	stmt, err := a.CreateTableSQL(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE "shop"."orders" (
  "id" INTEGER NOT NULL,
  "num" INTEGER DEFAULT nextval('"shop"."ord"'::regclass) NOT NULL,
  "customer" VARCHAR(40) DEFAULT 'anon' NOT NULL,
  "total" DOUBLE PRECISION NULL,
  "recversion" INTEGER DEFAULT 1 NOT NULL,
  CONSTRAINT "pk_orders" PRIMARY KEY ("id")
)`, stmt)
}

func TestIndexSQL(t *testing.T) {
	_, g := orders(t)
	tbl, _ := g.Table("orders")
	a := New()
	assert.Equal(t, []string{
		`CREATE INDEX "idx_customer" ON "shop"."orders" ("customer", "total")`,
		`CREATE INDEX "idx_customer__ci" ON "shop"."orders" (lower("customer"), "total")`,
	}, a.indexSQL(tbl, tbl.Indices()[0]))
}

func TestAlterColumnSQL(t *testing.T) {
	_, g := orders(t)
	tbl, _ := g.Table("orders")
	col, _ := tbl.Column("customer")
	a := New()

	stmt, err := a.alterColumnSQL(tbl, col, catalog.ColumnInfo{Name: "customer", Kind: score.KindString, Length: 20, Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "shop"."orders" ALTER COLUMN "customer" TYPE VARCHAR(40) USING "customer"::VARCHAR(40), `+
		`ALTER COLUMN "customer" SET NOT NULL, ALTER COLUMN "customer" SET DEFAULT 'anon'`, stmt)

	stmt, err = a.alterColumnSQL(tbl, col, catalog.Describe(col))
	require.NoError(t, err)
	assert.Empty(t, stmt, "a column that already matches needs no statement")

	num, _ := tbl.Column("num")
	stmt, err = a.alterColumnSQL(tbl, num, catalog.ColumnInfo{Name: "num", Kind: score.KindInteger, Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "shop"."orders" ALTER COLUMN "num" SET NOT NULL, `+
		`ALTER COLUMN "num" SET DEFAULT nextval('"shop"."ord"'::regclass)`, stmt)
}

func TestFunctionSQL(t *testing.T) {
	s, g := orders(t)
	v, err := g.AddView(s, score.View{
		Name:   "by_customer",
		Kind:   score.ParameterizedView,
		Params: []score.Param{{Name: "who", Kind: score.KindString}},
		Select: score.Select{
			Items: []score.SelectItem{{Column: score.ColumnRef{Column: "id"}}, {Column: score.ColumnRef{Column: "total"}}},
			From:  score.TableRef{Table: "orders"},
			Where: []score.Condition{{Left: score.ColumnRef{Column: "customer"}, Op: "=", Param: "who"}},
		},
	})
	require.NoError(t, err)
	stmt, err := New().functionSQL(s, v)
	require.NoError(t, err)
	assert.Equal(t, `CREATE FUNCTION "shop"."by_customer"("who" TEXT) RETURNS TABLE ("id" INTEGER, "total" DOUBLE PRECISION) AS $$ `+
		`SELECT "orders"."id" AS "id", "orders"."total" AS "total" FROM "shop"."orders" AS "orders" WHERE "orders"."customer" = $1 $$ LANGUAGE sql STABLE`, stmt)
}

func TestNormalizeDefault(t *testing.T) {
	tests := []struct {
		kind score.ColumnKind
		raw  string
		want string
	}{
		{score.KindInteger, "'-5'::integer", "-5"},
		{score.KindInteger, "(-5)", "-5"},
		{score.KindInteger, `nextval('"shop".ord'::regclass)`, "NEXTVAL(ord)"},
		{score.KindString, "'it''s'::character varying", "it's"},
		{score.KindFloating, "1.50", "1.5"},
		{score.KindBoolean, "true", "true"},
		{score.KindDateTime, "CURRENT_TIMESTAMP", score.DefaultNow},
		{score.KindDateTime, "now()", score.DefaultNow},
		{score.KindDateTime, "'2024-01-31 00:00:00'::timestamp without time zone", "20240131"},
		{score.KindBinary, `'\xab0f'::bytea`, "0xAB0F"},
		{score.KindString, "NULL::character varying", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDefault(tt.kind, tt.raw))
		})
	}
}

func TestColumnRoundTripRendering(t *testing.T) {
	a := New()
	for _, col := range []score.Column{
		score.BooleanColumn("b").WithDefault("false"),
		score.DateTimeColumn("d", true).WithDefault("20240131"),
		score.BinaryColumn("x").WithDefault("0xAB"),
	} {
		ci := catalog.Describe(&col)
		def, err := a.Registry.Default(ci)
		require.NoError(t, err)
		assert.NotEmpty(t, def)
	}
	lit, err := a.TranslateDateLiteral("20240131")
	require.NoError(t, err)
	assert.Equal(t, "DATE '2024-01-31'", lit)
	assert.Equal(t, "$3", a.Placeholder(3))
	assert.False(t, a.NullsFirst())
}
