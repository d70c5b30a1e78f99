package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 4, config.MaxOpenConns)
	assert.Equal(t, 2, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
}

func openPool(t *testing.T) *Pool {
	t.Helper()
	config := DefaultConfig()
	config.HealthCheckInterval = 0
	p, err := New(sqlite.New(), filepath.Join(t.TempDir(), "pool.db"), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestAcquireRelease(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	var seen []string
	p.Observe(func(_ dialect.Name, op dialect.Op, stmt string) {
		seen = append(seen, string(op)+":"+stmt)
	})

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Stats().Leased)

	var fk int
	require.NoError(t, c.QueryRow(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk, "sqlite connections are prepared with foreign keys on")

	require.NoError(t, c.ExecDDL(ctx, dialect.OpCreateTable, "CREATE TABLE t (x INTEGER)"))
	require.NoError(t, p.Commit(ctx, c))
	p.Release(c)

	assert.Equal(t, int64(0), p.Stats().Leased)
	assert.Equal(t, []string{"create-table:CREATE TABLE t (x INTEGER)"}, seen)
}

func TestObservers(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	var pooled, leased int
	remove := p.Observe(func(dialect.Name, dialect.Op, string) { pooled++ })
	exec := func(extra ...dialect.Observer) {
		c, err := p.Acquire(ctx, extra...)
		require.NoError(t, err)
		defer p.Release(c)
		require.NoError(t, c.ExecDDL(ctx, dialect.OpCreateTable, "CREATE TABLE IF NOT EXISTS t (x INTEGER)"))
	}

	exec(func(dialect.Name, dialect.Op, string) { leased++ })
	assert.Equal(t, 1, pooled)
	assert.Equal(t, 1, leased)

	exec()
	assert.Equal(t, 2, pooled)
	assert.Equal(t, 1, leased, "per-lease observers are not kept by the pool")

	remove()
	remove()
	exec()
	assert.Equal(t, 2, pooled, "removed observers see no further statements")
}

func TestHealthCheck(t *testing.T) {
	p := openPool(t)
	require.NoError(t, p.HealthCheck(context.Background()))
	stats := p.Stats()
	assert.Equal(t, dialect.SQLite, stats.Dialect)
	assert.False(t, stats.LastCheckedAt.IsZero())
	assert.NoError(t, stats.Health)
	assert.Zero(t, stats.FailedPings)
}

func TestAcquireAfterClose(t *testing.T) {
	config := DefaultConfig()
	config.HealthCheckInterval = 0
	p, err := New(sqlite.New(), filepath.Join(t.TempDir(), "closed.db"), config)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	assert.Error(t, err)
}
