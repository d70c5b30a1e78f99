package migration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/sqlite"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
	"github.com/satishbabariya/scoremigrate/internal/debug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t    *testing.T
	pool *pool.Pool
	ops  []dialect.Op
	c    *dialect.Conn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	debug.Discard()
	cfg := pool.DefaultConfig()
	cfg.HealthCheckInterval = 0
	p, err := pool.New(sqlite.New(), filepath.Join(t.TempDir(), "migrate.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	h := &harness{t: t, pool: p}
	p.Observe(func(_ dialect.Name, op dialect.Op, _ string) { h.ops = append(h.ops, op) })
	return h
}

func (h *harness) run(s *score.Score, opts Options) *Report {
	h.t.Helper()
	h.ops = nil
	report, err := New(s, h.pool).UpdateDb(context.Background(), opts)
	require.NoError(h.t, err)
	return report
}

// conn is the test's own connection, separate from the one the engine takes.
func (h *harness) conn() *dialect.Conn {
	h.t.Helper()
	if h.c == nil {
		c, err := h.pool.Acquire(context.Background())
		require.NoError(h.t, err)
		h.t.Cleanup(func() { h.pool.Release(c) })
		h.c = c
	}
	return h.c
}

func (h *harness) store(s *score.Score) *syscat.Store {
	return syscat.New(h.conn(), h.pool.Adaptor(), s)
}

func (h *harness) grainRow(s *score.Score, name string) syscat.GrainRow {
	h.t.Helper()
	row, found, err := h.store(s).Grain(context.Background(), name)
	require.NoError(h.t, err)
	require.True(h.t, found, name)
	return row
}

func outcome(t *testing.T, r *Report, grain string) GrainResult {
	t.Helper()
	res, ok := r.Grain(grain)
	require.True(t, ok, grain)
	return res
}

// declare builds a score with one grain "shop" whose fingerprint is taken from src.
func declare(t *testing.T, version, src string, build func(s *score.Score, g *score.Grain)) *score.Score {
	t.Helper()
	s := score.New()
	g, err := s.AddGrain("shop", version, score.FingerprintOf([]byte(src)))
	require.NoError(t, err)
	build(s, g)
	require.NoError(t, s.Validate())
	return s
}

// scenario declares b(b1 PK) and a(a1 PK, a2 indexed, a3 REFERENCES b).
func scenario(t *testing.T, a3NotNull bool) *score.Score {
	src := "a3 nullable"
	if a3NotNull {
		src = "a3 not null"
	}
	return declare(t, "1.0", src, func(s *score.Score, g *score.Grain) {
		_, err := g.AddTable("b")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("b", score.IntegerColumn("b1").NotNull()))
		require.NoError(t, g.SetPrimaryKey("b", "b1"))

		_, err = g.AddTable("a")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("a", score.IntegerColumn("a1").NotNull()))
		require.NoError(t, g.AddColumn("a", score.IntegerColumn("a2")))
		a3 := score.IntegerColumn("a3")
		if a3NotNull {
			a3 = a3.NotNull()
		}
		require.NoError(t, g.AddColumn("a", a3))
		require.NoError(t, g.SetPrimaryKey("a", "a1"))
		require.NoError(t, g.Finalize())
		require.NoError(t, g.AddIndex("a", "idx_a2", "a2"))
		require.NoError(t, g.AddForeignKey(s, "a", score.ForeignKey{Columns: []string{"a3"}, RefTable: "b"}))
	})
}

func TestEngine_Scenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.pool.Adaptor()

	s := scenario(t, false)
	report := h.run(s, Options{})
	assert.Equal(t, Migrated, outcome(t, report, score.SystemGrainName).Outcome)
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
	assert.Empty(t, report.Failed())
	assert.Contains(t, h.ops, dialect.OpCreateTable)
	assert.Contains(t, h.ops, dialect.OpCreateIndex)
	assert.Contains(t, h.ops, dialect.OpCreateForeignKey)

	c := h.conn()
	indices, err := a.IntrospectIndices(ctx, c, "shop")
	require.NoError(t, err)
	require.Len(t, indices, 1)
	assert.Equal(t, "idx_a2", indices[0].Name)
	fks, err := a.IntrospectForeignKeys(ctx, c, "shop")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, []string{"a3"}, fks[0].Columns)

	row := h.grainRow(s, "shop")
	assert.Equal(t, syscat.Ready, row.State)
	assert.True(t, row.Matches(s.Grains()[1].Fingerprint))

	report = h.run(scenario(t, false), Options{})
	assert.Empty(t, h.ops, "an unchanged score issues no DDL")
	assert.Zero(t, report.Statements())
	assert.Equal(t, Skipped, outcome(t, report, "shop").Outcome)

	report = h.run(scenario(t, true), Options{})
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
	require.NotEmpty(t, h.ops)
	for _, op := range h.ops {
		assert.Equal(t, dialect.OpAlterColumn, op, "only a3 changes")
	}
	cols, err := a.IntrospectColumns(ctx, c, "shop", "a")
	require.NoError(t, err)
	for _, ci := range cols {
		if ci.Name == "a3" {
			assert.False(t, ci.Nullable)
		}
	}
	fks, err = a.IntrospectForeignKeys(ctx, c, "shop")
	require.NoError(t, err)
	assert.Len(t, fks, 1)
}

func TestEngine_ForceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.run(scenario(t, false), Options{})

	report := h.run(scenario(t, false), Options{Force: true})
	assert.Empty(t, report.Failed())
	assert.Equal(t, Migrated, outcome(t, report, score.SystemGrainName).Outcome)
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
	assert.Empty(t, h.ops, "reprocessing an up-to-date database changes nothing")
}

func TestEngine_SkipOption(t *testing.T) {
	h := newHarness(t)
	report := h.run(scenario(t, false), Options{Skip: true})
	assert.Empty(t, report.Grains)
	assert.Empty(t, h.ops)

	ok, err := h.store(score.New()).Bootstrapped(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_LockImmunity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := scenario(t, false)
	h.run(s, Options{})
	require.NoError(t, h.store(s).SetGrainState(ctx, "shop", syscat.Locked))

	changed := scenario(t, true)
	report := h.run(changed, Options{})
	assert.Equal(t, Locked, outcome(t, report, "shop").Outcome)
	assert.Empty(t, h.ops)

	report = h.run(changed, Options{Force: true})
	assert.Equal(t, Locked, outcome(t, report, "shop").Outcome, "force does not override a lock")

	row := h.grainRow(s, "shop")
	assert.Equal(t, syscat.Locked, row.State)
	assert.False(t, row.Matches(changed.Grains()[1].Fingerprint))

	require.NoError(t, h.store(s).SetGrainState(ctx, "shop", syscat.Ready))
	report = h.run(changed, Options{})
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
}

func twoTables(t *testing.T, src string, withOld bool) *score.Score {
	return declare(t, "1.0", src, func(_ *score.Score, g *score.Grain) {
		names := []string{"current"}
		if withOld {
			names = append(names, "old")
		}
		for _, name := range names {
			_, err := g.AddTable(name)
			require.NoError(t, err)
			require.NoError(t, g.AddColumn(name, score.IntegerColumn("id").NotNull()))
			require.NoError(t, g.AddColumn(name, score.StringColumn("label", 40)))
			require.NoError(t, g.SetPrimaryKey(name, "id"))
		}
		require.NoError(t, g.Finalize())
	})
}

func TestEngine_OrphanNotDrop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.pool.Adaptor()

	h.run(twoTables(t, "v1", true), Options{})

	s := twoTables(t, "v2", false)
	report := h.run(s, Options{})
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
	assert.NotContains(t, h.ops, dialect.OpDropTable)

	exists, err := a.TableExists(ctx, h.conn(), "shop", "old")
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := h.store(s).Directory(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, []syscat.DirectoryEntry{
		{Grain: "shop", Name: "current", Kind: syscat.KindTable},
		{Grain: "shop", Name: "old", Kind: syscat.KindTable, Orphaned: true},
	}, entries)

	s = twoTables(t, "v3", true)
	report = h.run(s, Options{})
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
	assert.Zero(t, outcome(t, report, "shop").Statements, "re-declaring an unchanged table applies no DDL")
	entries, err = h.store(s).Directory(ctx, "shop")
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.Orphaned, e.Name)
	}
}

func TestEngine_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	s := score.New()
	bad, err := s.AddGrain("bad", "1.0", score.FingerprintOf([]byte("bad")))
	require.NoError(t, err)
	_, err = bad.AddTable("t")
	require.NoError(t, err)
	require.NoError(t, bad.AddColumn("t", score.IntegerColumn("x").NotNull()))
	require.NoError(t, bad.SetPrimaryKey("t", "x"))
	require.NoError(t, bad.Finalize())
	_, err = bad.AddView(s, score.View{
		Name: "by_x",
		Kind: score.ParameterizedView,
		Select: score.Select{
			Items: []score.SelectItem{{Column: score.ColumnRef{Column: "x"}}},
			From:  score.TableRef{Table: "t"},
			Where: []score.Condition{{Left: score.ColumnRef{Column: "x"}, Op: "=", Param: "p"}},
		},
		Params: []score.Param{{Name: "p", Kind: score.KindInteger}},
	})
	require.NoError(t, err)

	good, err := s.AddGrain("good", "1.0", score.FingerprintOf([]byte("good")))
	require.NoError(t, err)
	_, err = good.AddTable("t")
	require.NoError(t, err)
	require.NoError(t, good.AddColumn("t", score.IntegerColumn("x").NotNull()))
	require.NoError(t, good.SetPrimaryKey("t", "x"))
	require.NoError(t, good.Finalize())

	report := h.run(s, Options{})
	failed := outcome(t, report, "bad")
	assert.Equal(t, Failed, failed.Outcome)
	assert.Contains(t, failed.Err, "parameterized view")
	var gerr *GrainError
	require.ErrorAs(t, failed.Cause(), &gerr)
	assert.Equal(t, "bad", gerr.Grain)
	assert.ErrorIs(t, failed.Cause(), dialect.ErrUnsupported)
	assert.Equal(t, Migrated, outcome(t, report, "good").Outcome)

	row := h.grainRow(s, "bad")
	assert.Equal(t, syscat.Error, row.State)
	assert.NotEmpty(t, row.Message)
	assert.Equal(t, syscat.Ready, h.grainRow(s, "good").State)

	report = h.run(s, Options{})
	assert.Equal(t, Skipped, outcome(t, report, "bad").Outcome, "a failed grain waits for a change")
	assert.Equal(t, syscat.Error, outcome(t, report, "bad").State)

	require.NoError(t, h.store(s).SetGrainState(ctx, "bad", syscat.Recover))
	report = h.run(s, Options{})
	assert.Equal(t, Failed, outcome(t, report, "bad").Outcome, "RECOVER retries the grain")
}

func TestEngine_NativeSQLIsRejected(t *testing.T) {
	h := newHarness(t)
	s := scenario(t, false)
	g, ok := s.Grain("shop")
	require.True(t, ok)
	g.NativeSQL = []string{"CREATE TABLE extra (id INT)"}

	h.ops = nil
	_, err := New(s, h.pool).UpdateDb(context.Background(), Options{})
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "shop", cerr.Grain)
	assert.Empty(t, h.ops, "nothing is applied, not even the system grain")
}

func TestEngine_PrimaryKeyFidelity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.pool.Adaptor()

	keyed := func(src string, pk ...string) *score.Score {
		return declare(t, "1.0", src, func(_ *score.Score, g *score.Grain) {
			_, err := g.AddTable("lines")
			require.NoError(t, err)
			require.NoError(t, g.AddColumn("lines", score.IntegerColumn("order_id").NotNull()))
			require.NoError(t, g.AddColumn("lines", score.IntegerColumn("line_no").NotNull()))
			require.NoError(t, g.AddColumn("lines", score.FloatingColumn("qty")))
			require.NoError(t, g.SetPrimaryKey("lines", pk...))
			require.NoError(t, g.Finalize())
		})
	}

	h.run(keyed("v1", "order_id", "line_no"), Options{})
	_, err := h.conn().Exec(ctx, `INSERT INTO "shop.lines" (order_id, line_no, qty) VALUES (1, 2, 3.5)`)
	require.NoError(t, err)

	pk, err := a.IntrospectPrimaryKey(ctx, h.conn(), "shop", "lines")
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "line_no"}, pk.Columns)

	report := h.run(keyed("v2", "line_no", "order_id"), Options{})
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
	assert.Contains(t, h.ops, dialect.OpCreatePrimaryKey)

	pk, err = a.IntrospectPrimaryKey(ctx, h.conn(), "shop", "lines")
	require.NoError(t, err)
	assert.Equal(t, []string{"line_no", "order_id"}, pk.Columns)

	var n int
	require.NoError(t, h.conn().QueryRow(ctx, `SELECT COUNT(*) FROM "shop.lines"`).Scan(&n))
	assert.Equal(t, 1, n, "rows survive the key change")
}

func TestEngine_DowngradeRefused(t *testing.T) {
	h := newHarness(t)
	build := func(_ *score.Score, g *score.Grain) {
		_, err := g.AddTable("t")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("id").NotNull()))
		require.NoError(t, g.SetPrimaryKey("t", "id"))
		require.NoError(t, g.Finalize())
	}
	h.run(declare(t, "1.2", "v1.2", build), Options{})

	s := declare(t, "1.1", "v1.1", build)
	report := h.run(s, Options{})
	res := outcome(t, report, "shop")
	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Cause(), ErrDowngrade)

	row := h.grainRow(s, "shop")
	assert.Equal(t, syscat.Error, row.State)
	assert.Equal(t, "1.2", row.Version, "the installed version is kept")
}

func TestEngine_MaterializedViewRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := declare(t, "1.0", "mv", func(s *score.Score, g *score.Grain) {
		_, err := g.AddTable("orders")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("orders", score.IntegerColumn("id").NotNull()))
		require.NoError(t, g.AddColumn("orders", score.StringColumn("customer", 20).NotNull()))
		require.NoError(t, g.AddColumn("orders", score.IntegerColumn("amount").NotNull()))
		require.NoError(t, g.SetPrimaryKey("orders", "id"))
		require.NoError(t, g.Finalize())
		_, err = g.AddView(s, score.View{
			Name: "totals",
			Kind: score.MaterializedView,
			Select: score.Select{
				Items: []score.SelectItem{
					{Column: score.ColumnRef{Column: "customer"}},
					{Alias: "total", Aggregate: score.AggSum, Column: score.ColumnRef{Column: "amount"}},
				},
				From:    score.TableRef{Table: "orders"},
				GroupBy: []score.ColumnRef{{Column: "customer"}},
			},
		})
		require.NoError(t, err)
	})
	h.run(s, Options{})

	c := h.conn()
	_, err := c.Exec(ctx, `INSERT INTO "shop.orders" (id, customer, amount) VALUES (1, 'ann', 10), (2, 'ann', 5), (3, 'bob', 7)`)
	require.NoError(t, err)

	report := h.run(s, Options{Force: true})
	assert.Empty(t, report.Failed())

	var total, count int
	require.NoError(t, c.QueryRow(ctx, `SELECT total, surrogate_count FROM "shop.totals" WHERE customer = 'ann'`).Scan(&total, &count))
	assert.Equal(t, 15, total)
	assert.Equal(t, 2, count)

	entries, err := h.store(s).Directory(ctx, "shop")
	require.NoError(t, err)
	assert.Contains(t, entries, syscat.DirectoryEntry{Grain: "shop", Name: "totals", Kind: syscat.KindMaterialized})
}

func TestUpdateSysGrain(t *testing.T) {
	h := newHarness(t)
	s := score.New()
	require.NoError(t, New(s, h.pool).UpdateSysGrain(context.Background()))
	row := h.grainRow(s, score.SystemGrainName)
	assert.Equal(t, syscat.Ready, row.State)
	assert.True(t, row.Matches(s.SystemGrain().Fingerprint))

	h.ops = nil
	require.NoError(t, New(s, h.pool).UpdateSysGrain(context.Background()))
	assert.Empty(t, h.ops)
}

func TestReport_Markdown(t *testing.T) {
	r := &Report{RunID: "run-1", Dialect: dialect.SQLite}
	r.add(GrainResult{Grain: "shop", Version: "1.0", Outcome: Migrated, Statements: 3})
	r.add(GrainResult{Grain: "bad", Version: "1.0", Outcome: Failed, State: syscat.Error, Err: "boom"})
	md := r.Markdown()
	assert.Contains(t, md, "| shop | 1.0 | migrated | READY | 3 |")
	assert.Contains(t, md, "### bad")
	assert.Contains(t, md, "boom")
	assert.Equal(t, 3, r.Statements())
	assert.Equal(t, 1, r.Count(Failed))
}

func TestGrainError_Introspection(t *testing.T) {
	ierr := &GrainError{Grain: "g", Err: dialect.Wrap(dialect.SQLite, dialect.OpIntrospect, "SELECT 1", errors.New("x"))}
	assert.True(t, ierr.Introspection())
	derr := &GrainError{Grain: "g", Err: dialect.Wrap(dialect.SQLite, dialect.OpCreateTable, "CREATE", errors.New("x"))}
	assert.False(t, derr.Introspection())
}

func TestEngine_InterruptedRunIsRetried(t *testing.T) {
	tests := []struct {
		name string
		// sameDeclaration reruns the declaration the interrupted run was applying.
		sameDeclaration bool
	}{
		{"interrupted upgrade", false},
		{"interrupted forced run", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			s := scenario(t, false)
			h.run(s, Options{})

			// An interrupted run leaves UPGRADING behind with the fingerprint it started from.
			require.NoError(t, h.store(s).SetState(ctx, "shop", syscat.Upgrading, ""))

			next := scenario(t, !tt.sameDeclaration)
			report := h.run(next, Options{})
			assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome)
			row := h.grainRow(s, "shop")
			assert.Equal(t, syscat.Ready, row.State)
			assert.True(t, row.Matches(next.Grains()[1].Fingerprint))
		})
	}
}

// crossGrain declares grain ref with b(b1, b2) keyed by refKey and grain shop
// with a(a1 PK, a3 REFERENCES ref.b). shopSrc is shop's fingerprint source.
func crossGrain(t *testing.T, refKey, shopSrc string, withFK bool) *score.Score {
	t.Helper()
	s := score.New()
	ref, err := s.AddGrain("ref", "1.0", score.FingerprintOf([]byte("ref keyed by "+refKey)))
	require.NoError(t, err)
	_, err = ref.AddTable("b")
	require.NoError(t, err)
	require.NoError(t, ref.AddColumn("b", score.IntegerColumn("b1").NotNull()))
	require.NoError(t, ref.AddColumn("b", score.IntegerColumn("b2").NotNull()))
	require.NoError(t, ref.SetPrimaryKey("b", refKey))
	require.NoError(t, ref.Finalize())

	shop, err := s.AddGrain("shop", "1.0", score.FingerprintOf([]byte(shopSrc)))
	require.NoError(t, err)
	_, err = shop.AddTable("a")
	require.NoError(t, err)
	require.NoError(t, shop.AddColumn("a", score.IntegerColumn("a1").NotNull()))
	require.NoError(t, shop.AddColumn("a", score.IntegerColumn("a3")))
	require.NoError(t, shop.SetPrimaryKey("a", "a1"))
	require.NoError(t, shop.Finalize())
	if withFK {
		require.NoError(t, shop.AddForeignKey(s, "a", score.ForeignKey{Columns: []string{"a3"}, RefGrain: "ref", RefTable: "b"}))
	}
	require.NoError(t, s.Validate())
	return s
}

func TestEngine_CrossGrainKeyChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.pool.Adaptor()

	report := h.run(crossGrain(t, "b1", "shop", true), Options{})
	var order []string
	for _, g := range report.Grains {
		order = append(order, g.Grain)
	}
	assert.Equal(t, []string{score.SystemGrainName, "ref", "shop"}, order, "shop migrates after the grain it references")
	assert.Empty(t, report.Failed())

	s := crossGrain(t, "b2", "shop", true)
	report = h.run(s, Options{})
	assert.Empty(t, report.Failed())
	assert.Equal(t, Migrated, outcome(t, report, "ref").Outcome)
	assert.Equal(t, Skipped, outcome(t, report, "shop").Outcome)
	assert.Contains(t, h.ops, dialect.OpDropForeignKey)
	assert.Contains(t, h.ops, dialect.OpCreatePrimaryKey)
	assert.Contains(t, h.ops, dialect.OpCreateForeignKey)

	pk, err := a.IntrospectPrimaryKey(ctx, h.conn(), "ref", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, pk.Columns)
	fks, err := a.IntrospectForeignKeys(ctx, h.conn(), "shop")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "ref", fks[0].RefGrain)
	assert.Equal(t, []string{"b2"}, fks[0].RefColumns, "the key of shop follows the rebuilt key of ref")

	incoming, err := a.IntrospectReferencingKeys(ctx, h.conn(), "ref", "b")
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "shop", incoming[0].Grain)
	assert.Equal(t, "a", incoming[0].Table)

	report = h.run(s, Options{})
	assert.Empty(t, h.ops)
	assert.Equal(t, Skipped, outcome(t, report, "ref").Outcome)
}

func TestEngine_CrossGrainKeyNotRestorable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.pool.Adaptor()
	h.run(crossGrain(t, "b1", "shop", true), Options{})

	// shop no longer declares its key but keeps the recorded fingerprint, so
	// only the key change of ref reaches it.
	s := crossGrain(t, "b2", "shop", false)
	report := h.run(s, Options{})
	assert.Empty(t, report.Failed())
	assert.Equal(t, Migrated, outcome(t, report, "ref").Outcome)
	assert.Equal(t, Migrated, outcome(t, report, "shop").Outcome, "the owner of the dropped key is recovered")

	fks, err := a.IntrospectForeignKeys(ctx, h.conn(), "shop")
	require.NoError(t, err)
	assert.Empty(t, fks)
	assert.Equal(t, syscat.Ready, h.grainRow(s, "shop").State)
}

func TestEngine_CrossGrainKeyOwnerLocked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.run(crossGrain(t, "b1", "shop", true), Options{})
	require.NoError(t, h.store(score.New()).SetGrainState(ctx, "shop", syscat.Locked))

	s := crossGrain(t, "b2", "shop", false)
	report := h.run(s, Options{})
	assert.Equal(t, Migrated, outcome(t, report, "ref").Outcome)
	assert.Equal(t, Locked, outcome(t, report, "shop").Outcome)
	assert.Equal(t, syscat.Locked, h.grainRow(s, "shop").State, "a lock survives a key change of a referenced grain")
}

type countingRecorder struct {
	statements int
}

func (r *countingRecorder) Statement(dialect.Name, dialect.Op) { r.statements++ }

func (r *countingRecorder) Grain(string, time.Duration) {}

func TestEngine_StatementsStayWithTheirEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := &countingRecorder{}
	report, err := New(scenario(t, false), h.pool, WithRecorder(first)).UpdateDb(ctx, Options{})
	require.NoError(t, err)
	require.NotZero(t, first.statements)
	assert.Equal(t, report.Statements(), first.statements)
	seen := first.statements

	second := &countingRecorder{}
	report, err = New(scenario(t, true), h.pool, WithRecorder(second)).UpdateDb(ctx, Options{})
	require.NoError(t, err)
	require.NotZero(t, second.statements)
	assert.Equal(t, report.Statements(), second.statements)
	assert.Equal(t, seen, first.statements, "a finished engine records nothing further")
}

func TestEngine_CyclicScoreIsRejected(t *testing.T) {
	h := newHarness(t)
	s := score.New()
	for _, name := range []string{"x", "y"} {
		g, err := s.AddGrain(name, "1.0", score.FingerprintOf([]byte(name)))
		require.NoError(t, err)
		_, err = g.AddTable("t")
		require.NoError(t, err)
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("id").NotNull()))
		require.NoError(t, g.AddColumn("t", score.IntegerColumn("other")))
		require.NoError(t, g.SetPrimaryKey("t", "id"))
		require.NoError(t, g.Finalize())
	}
	x, _ := s.Grain("x")
	y, _ := s.Grain("y")
	require.NoError(t, x.AddForeignKey(s, "t", score.ForeignKey{Columns: []string{"other"}, RefGrain: "y", RefTable: "t"}))
	require.NoError(t, y.AddForeignKey(s, "t", score.ForeignKey{Columns: []string{"other"}, RefGrain: "x", RefTable: "t"}))

	h.ops = nil
	report, err := New(s, h.pool).UpdateDb(context.Background(), Options{})
	var verr *score.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "cyclic")
	assert.Empty(t, report.Grains)
	assert.Empty(t, h.ops, "nothing is applied, not even the system grain")
}
