package syscat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/sqlite"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, bootstrap bool) (*Store, *dialect.Conn, *score.Score) {
	t.Helper()
	ctx := context.Background()
	a := sqlite.New()
	cfg := pool.DefaultConfig()
	cfg.HealthCheckInterval = 0
	p, err := pool.New(a, filepath.Join(t.TempDir(), "sys.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { p.Release(c) })

	s := score.New()
	if bootstrap {
		for _, tbl := range s.SystemGrain().Tables() {
			require.NoError(t, a.CreateTable(ctx, c, tbl))
		}
	}
	return New(c, a, s), c, s
}

func TestStore_GrainLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, s := openStore(t, true)

	g, err := s.AddGrain("shop", "1.0", score.FingerprintOf([]byte("grain shop")))
	require.NoError(t, err)

	_, found, err := st.Grain(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, found)

	row, err := st.Register(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, Recover, row.State)
	assert.Equal(t, "00000000", row.Checksum)
	assert.False(t, row.Matches(g.Fingerprint))

	row.Length = g.Fingerprint.Length
	row.Checksum = g.Fingerprint.ChecksumHex()
	row.State = Ready
	require.NoError(t, st.PutGrain(ctx, row))

	row, found, err = st.Grain(ctx, "shop")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, row.Matches(g.Fingerprint))
	assert.Equal(t, Ready, row.State)
	assert.False(t, row.LastModified.IsZero())

	require.NoError(t, st.SetState(ctx, "shop", Error, "boom"))
	row, _, err = st.Grain(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, Error, row.State)
	assert.Equal(t, "boom", row.Message)
	assert.True(t, row.Matches(g.Fingerprint), "a state change keeps the fingerprint")

	rows, err := st.Grains(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "shop", rows[0].Name)
}

func TestStore_SetGrainState(t *testing.T) {
	ctx := context.Background()
	st, _, s := openStore(t, true)
	g, err := s.AddGrain("shop", "1.0", score.Fingerprint{})
	require.NoError(t, err)
	_, err = st.Register(ctx, g)
	require.NoError(t, err)

	require.NoError(t, st.SetGrainState(ctx, "shop", Locked))
	row, _, err := st.Grain(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, Locked, row.State)

	assert.Error(t, st.SetGrainState(ctx, "shop", Upgrading))
	assert.ErrorIs(t, st.SetGrainState(ctx, "missing", Locked), ErrUnknownGrain)
}

func TestStore_Directory(t *testing.T) {
	ctx := context.Background()
	st, _, _ := openStore(t, true)

	require.NoError(t, st.PutObject(ctx, DirectoryEntry{Grain: "shop", Name: "orders", Kind: KindTable}))
	require.NoError(t, st.PutObject(ctx, DirectoryEntry{Grain: "shop", Name: "totals", Kind: KindMaterialized}))
	require.NoError(t, st.PutObject(ctx, DirectoryEntry{Grain: "shop", Name: "orders", Kind: KindTable, Orphaned: true}))

	entries, err := st.Directory(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, []DirectoryEntry{
		{Grain: "shop", Name: "orders", Kind: KindTable, Orphaned: true},
		{Grain: "shop", Name: "totals", Kind: KindMaterialized},
	}, entries)

	entries, err = st.Directory(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, c, s := openStore(t, true)
	require.NoError(t, st.Seed(ctx))
	require.NoError(t, st.Seed(ctx))

	var roles, perms int
	require.NoError(t, c.QueryRow(ctx, `SELECT COUNT(*) FROM "scoresys.roles"`).Scan(&roles))
	require.NoError(t, c.QueryRow(ctx, `SELECT COUNT(*) FROM "scoresys.permissions"`).Scan(&perms))
	assert.Equal(t, 2, roles)
	assert.Equal(t, 2*len(s.SystemGrain().Tables()), perms)
}

func TestStore_Bootstrapped(t *testing.T) {
	ctx := context.Background()
	st, _, _ := openStore(t, false)
	ok, err := st.Bootstrapped(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseGrainState(t *testing.T) {
	for st := Ready; st <= Locked; st++ {
		got, err := ParseGrainState(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	got, err := ParseGrainState("locked")
	require.NoError(t, err)
	assert.Equal(t, Locked, got)
	_, err = ParseGrainState("frozen")
	assert.Error(t, err)
	assert.Equal(t, KindFunction, KindOfView(score.ParameterizedView))
}
