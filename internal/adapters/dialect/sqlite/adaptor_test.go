package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	ops []dialect.Op
}

func (r *recorder) observe(_ dialect.Name, op dialect.Op, _ string) {
	r.ops = append(r.ops, op)
}

func openConn(t *testing.T) (*dialect.Conn, *recorder) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "score.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	raw, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	rec := &recorder{}
	c := dialect.NewConn(raw, dialect.SQLite, rec.observe)
	require.NoError(t, New().PrepareConn(context.Background(), c))
	return c, rec
}

func testGrain(t *testing.T, build func(s *score.Score, g *score.Grain)) (*score.Score, *score.Grain) {
	t.Helper()
	s := score.New()
	g, err := s.AddGrain("g", "1.0", score.Fingerprint{})
	require.NoError(t, err)
	build(s, g)
	return s, g
}

func table(t *testing.T, g *score.Grain, name string) *score.Table {
	t.Helper()
	tbl, ok := g.Table(name)
	require.True(t, ok)
	return tbl
}

func TestAdaptor_ColumnRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := openConn(t)
	a := New()
	_, g := testGrain(t, func(_ *score.Score, g *score.Grain) {
		_, err := g.AddTable("t")
		require.NoError(t, err)
		for _, col := range []score.Column{
			score.IntegerColumn("id").AsIdentity(),
			score.IntegerColumn("qty").WithDefault("-5"),
			score.StringColumn("code", 20).NotNull().WithDefault("it's"),
			score.TextColumn("notes"),
			score.FloatingColumn("price").WithDefault("1.5"),
			score.BooleanColumn("active").NotNull().WithDefault("true"),
			score.DateTimeColumn("created", false).NotNull().WithDefault(score.DefaultNow),
			score.DateTimeColumn("due", true).WithDefault("20240131"),
			score.BinaryColumn("blob").WithDefault("0xab0f"),
		} {
			require.NoError(t, g.AddColumn("t", col))
		}
		require.NoError(t, g.SetPrimaryKey("t", "id"))
		require.NoError(t, g.Finalize())
	})
	tbl := table(t, g, "t")

	require.NoError(t, a.CreateTable(ctx, c, tbl))
	exists, err := a.TableExists(ctx, c, "g", "t")
	require.NoError(t, err)
	assert.True(t, exists)

	cols, err := a.IntrospectColumns(ctx, c, "g", "t")
	require.NoError(t, err)
	require.Len(t, cols, len(tbl.Columns()))
	for _, ci := range cols {
		t.Run(ci.Name, func(t *testing.T) {
			col, ok := tbl.Column(ci.Name)
			require.True(t, ok)
			assert.Empty(t, ci.Diff(col))
			assert.Equal(t, col.Identity(), ci.Identity)
		})
	}

	pk, err := a.IntrospectPrimaryKey(ctx, c, "g", "t")
	require.NoError(t, err)
	assert.True(t, pk.Reflects(tbl))

	missing, err := a.IntrospectColumns(ctx, c, "g", "absent")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func abGrain(t *testing.T) (*score.Score, *score.Grain) {
	return testGrain(t, func(s *score.Score, g *score.Grain) {
		_, err := g.AddTable("b")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("b", score.IntegerColumn("b1").NotNull()))
		require.NoError(t, g.SetPrimaryKey("b", "b1"))

		_, err = g.AddTable("a")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("a", score.IntegerColumn("a1").NotNull()))
		require.NoError(t, g.AddColumn("a", score.IntegerColumn("a2")))
		require.NoError(t, g.AddColumn("a", score.IntegerColumn("a3")))
		require.NoError(t, g.AddColumn("a", score.StringColumn("a4", 10)))
		require.NoError(t, g.SetPrimaryKey("a", "a1"))
		require.NoError(t, g.Finalize())
		require.NoError(t, g.AddIndex("a", "idx_a2", "a2"))
		require.NoError(t, g.AddIndex("a", "idx_a4", "a4"))
		require.NoError(t, g.AddForeignKey(s, "a", score.ForeignKey{Columns: []string{"a3"}, RefTable: "b"}))
	})
}

func TestAdaptor_IndicesAndForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := openConn(t)
	a := New()
	_, g := abGrain(t)
	ta, tb := table(t, g, "a"), table(t, g, "b")

	require.NoError(t, a.CreateTable(ctx, c, tb))
	require.NoError(t, a.CreateTable(ctx, c, ta))
	for _, idx := range ta.Indices() {
		require.NoError(t, a.CreateIndex(ctx, c, ta, idx))
	}
	fk := ta.ForeignKeys()[0]
	require.NoError(t, a.CreateForeignKey(ctx, c, fk))

	indices, err := a.IntrospectIndices(ctx, c, "g")
	require.NoError(t, err)
	require.Len(t, indices, 2)
	assert.Equal(t, catalog.IndexInfo{Name: "idx_a2", Table: "a", Columns: []string{"a2"}}, indices[0])
	assert.Equal(t, catalog.IndexInfo{Name: "idx_a4", Table: "a", Columns: []string{"a4"}, Shadow: true}, indices[1])

	fks, err := a.IntrospectForeignKeys(ctx, c, "g")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, catalog.SignatureOf(fk), fks[0].Signature())
	assert.Equal(t, fk.Name, fks[0].Name)

	// The rebuild keeps both indices.
	require.NoError(t, a.DropForeignKey(ctx, c, "g", fks[0]))
	fks, err = a.IntrospectForeignKeys(ctx, c, "g")
	require.NoError(t, err)
	assert.Empty(t, fks)
	indices, err = a.IntrospectIndices(ctx, c, "g")
	require.NoError(t, err)
	assert.Len(t, indices, 2)

	require.NoError(t, a.DropIndex(ctx, c, "g", catalog.IndexInfo{Name: "idx_a4", Table: "a", Shadow: true}))
	indices, err = a.IntrospectIndices(ctx, c, "g")
	require.NoError(t, err)
	require.Len(t, indices, 1)
	assert.Equal(t, "idx_a2", indices[0].Name)
}

func TestAdaptor_AlterColumnKeepsRows(t *testing.T) {
	ctx := context.Background()
	c, rec := openConn(t)
	a := New()
	_, g := abGrain(t)
	ta, tb := table(t, g, "a"), table(t, g, "b")
	require.NoError(t, a.CreateTable(ctx, c, tb))
	require.NoError(t, a.CreateTable(ctx, c, ta))
	require.NoError(t, a.CreateIndex(ctx, c, ta, ta.Indices()[0]))
	require.NoError(t, a.UpdateVersioningTrigger(ctx, c, ta))

	_, err := c.Exec(ctx, `INSERT INTO "g.a" (a1, a2, a3) VALUES (1, 10, 100), (2, 20, 200)`)
	require.NoError(t, err)

	rec.ops = nil
	actual, err := a.IntrospectColumns(ctx, c, "g", "a")
	require.NoError(t, err)
	wanted := score.IntegerColumn("a3").NotNull().WithDefault("0")
	require.NoError(t, a.AlterColumn(ctx, c, ta, &wanted, actual[2]))
	require.NotEmpty(t, rec.ops)
	for _, op := range rec.ops {
		assert.Equal(t, dialect.OpAlterColumn, op)
	}

	cols, err := a.IntrospectColumns(ctx, c, "g", "a")
	require.NoError(t, err)
	assert.Empty(t, cols[2].Diff(&wanted))

	var n int
	require.NoError(t, c.QueryRow(ctx, `SELECT COUNT(*) FROM "g.a"`).Scan(&n))
	assert.Equal(t, 2, n)

	indices, err := a.IntrospectIndices(ctx, c, "g")
	require.NoError(t, err)
	assert.Len(t, indices, 1)

	// The replayed triggers still bump recversion.
	_, err = c.Exec(ctx, `UPDATE "g.a" SET a2 = 11 WHERE a1 = 1`)
	require.NoError(t, err)
	var ver int
	require.NoError(t, c.QueryRow(ctx, `SELECT recversion FROM "g.a" WHERE a1 = 1`).Scan(&ver))
	assert.Equal(t, 2, ver)

	_, err = c.Exec(ctx, `UPDATE "g.a" SET a2 = 12, recversion = 1 WHERE a1 = 1`)
	assert.Error(t, err, "stale recversion is rejected")
}

func TestAdaptor_PrimaryKeyAndIdentity(t *testing.T) {
	ctx := context.Background()
	c, _ := openConn(t)
	a := New()
	_, g := testGrain(t, func(_ *score.Score, g *score.Grain) {
		_, err := g.AddTable("t")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("id").NotNull()))
		require.NoError(t, g.AddColumn("t", score.StringColumn("code", 5).NotNull()))
		require.NoError(t, g.SetPrimaryKey("t", "code", "id"))
		require.NoError(t, g.Finalize())
	})
	tbl := table(t, g, "t")
	require.NoError(t, a.CreateTable(ctx, c, tbl))

	pk, err := a.IntrospectPrimaryKey(ctx, c, "g", "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "id"}, pk.Columns)

	require.NoError(t, a.DropPrimaryKey(ctx, c, tbl, pk))
	pk, err = a.IntrospectPrimaryKey(ctx, c, "g", "t")
	require.NoError(t, err)
	assert.True(t, pk.Empty())

	_, g2 := testGrain(t, func(_ *score.Score, g *score.Grain) {
		_, err := g.AddTable("t")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("id").AsIdentity()))
		require.NoError(t, g.AddColumn("t", score.StringColumn("code", 5).NotNull()))
		require.NoError(t, g.SetPrimaryKey("t", "id"))
		require.NoError(t, g.Finalize())
	})
	next := table(t, g2, "t")
	require.NoError(t, a.CreatePrimaryKey(ctx, c, next))
	require.NoError(t, a.ManageAutoIncrement(ctx, c, next))

	cols, err := a.IntrospectColumns(ctx, c, "g", "t")
	require.NoError(t, err)
	assert.True(t, cols[0].Identity)

	require.NoError(t, a.ResetIdentity(ctx, c, next, 50))
	_, err = c.Exec(ctx, `INSERT INTO "g.t" (code) VALUES ('x')`)
	require.NoError(t, err)
	var id int64
	require.NoError(t, c.QueryRow(ctx, `SELECT id FROM "g.t" WHERE code = 'x'`).Scan(&id))
	assert.Equal(t, int64(50), id)
}

func TestAdaptor_SequencesAndViews(t *testing.T) {
	ctx := context.Background()
	c, _ := openConn(t)
	a := New()
	s, g := testGrain(t, func(s *score.Score, g *score.Grain) {
		_, err := g.AddSequence("ord", score.SequenceOptions{})
		require.NoError(t, err)
		_, err = g.AddTable("t")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("id").NotNull()))
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("qty")))
		require.NoError(t, g.SetPrimaryKey("t", "id"))
		require.NoError(t, g.Finalize())
		_, err = g.AddView(s, score.View{
			Name: "v",
			Select: score.Select{
				Items: []score.SelectItem{{Column: score.ColumnRef{Column: "id"}}, {Column: score.ColumnRef{Column: "qty"}}},
				From:  score.TableRef{Table: "t"},
			},
		})
		require.NoError(t, err)
	})
	registry := table(t, s.SystemGrain(), score.SequencesTable)
	require.NoError(t, a.CreateTable(ctx, c, registry))

	seq, _ := g.Sequence("ord")
	_, ok, err := a.IntrospectSequence(ctx, c, "g", "ord")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, a.CreateSequence(ctx, c, seq))
	info, ok, err := a.IntrospectSequence(ctx, c, "g", "ord")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, info.Reflects(seq))

	require.NoError(t, a.CreateTable(ctx, c, table(t, g, "t")))
	v, _ := g.View("v")
	require.NoError(t, a.CreateView(ctx, c, s, v))
	exists, err := a.ViewExists(ctx, c, "g", "v", score.PlainView)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, a.DropView(ctx, c, "g", "v", score.PlainView))
	exists, err = a.ViewExists(ctx, c, "g", "v", score.PlainView)
	require.NoError(t, err)
	assert.False(t, exists)

	pv := &score.View{Name: "p", Grain: "g", Kind: score.ParameterizedView}
	assert.ErrorIs(t, a.CreateView(ctx, c, s, pv), dialect.ErrUnsupported)
}

func TestNormalizeDefault(t *testing.T) {
	tests := []struct {
		kind score.ColumnKind
		raw  string
		want string
	}{
		{score.KindInteger, "(-5)", "-5"},
		{score.KindString, "'it''s'", "it's"},
		{score.KindBoolean, "1", "true"},
		{score.KindDateTime, "CURRENT_TIMESTAMP", score.DefaultNow},
		{score.KindDateTime, "'2024-01-31 00:00:00'", "20240131"},
		{score.KindBinary, "X'ab0f'", "0xAB0F"},
		{score.KindInteger, "NULL", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDefault(tt.kind, tt.raw))
		})
	}
}
