package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect/sqlite"
	"github.com/satishbabariya/scoremigrate/internal/core/database/pool"
	"github.com/satishbabariya/scoremigrate/internal/core/migration"
	"github.com/satishbabariya/scoremigrate/internal/core/score/loader"
	"github.com/satishbabariya/scoremigrate/internal/debug"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.Statement(dialect.PostgreSQL, dialect.OpCreateTable)
	m.Statement(dialect.PostgreSQL, dialect.OpCreateTable)
	m.Statement(dialect.MySQL, dialect.OpCreateIndex)
	m.Grain(string(migration.Migrated), 2*time.Second)
	m.Grain(string(migration.Skipped), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Statements.WithLabelValues("postgres", "create-table")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Statements.WithLabelValues("mysql", "create-index")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Grains.WithLabelValues("migrated")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Grains))

	count, err := testutil.GatherAndCount(m.Registry(), "scoremigrate_grain_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.Grain(string(migration.Failed), time.Second)
	path := filepath.Join(t.TempDir(), "scoremigrate.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `scoremigrate_grains_total{outcome="failed"} 1`)
	assert.Contains(t, string(data), "scoremigrate_grain_duration_seconds_count 1")
}

func TestMetrics_EngineRun(t *testing.T) {
	debug.Discard()
	s, err := loader.Build(loader.Source{Path: "notes.yaml", Data: []byte(`tables:
  - name: note
    primary_key: [id]
    columns:
      - {name: id, type: int, not_null: true}
      - {name: body, type: text}
`)})
	require.NoError(t, err)

	cfg := pool.DefaultConfig()
	cfg.HealthCheckInterval = 0
	p, err := pool.New(sqlite.New(), filepath.Join(t.TempDir(), "metrics.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	m := New()
	engine := migration.New(s, p, migration.WithRecorder(m))
	report, err := engine.UpdateDb(context.Background(), migration.Options{})
	require.NoError(t, err)
	require.Empty(t, report.Failed())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Grains.WithLabelValues("migrated")))
	assert.Equal(t, float64(report.Statements()), statementTotal(t, m))
}

// statementTotal sums the DDL statement counters over all label values.
func statementTotal(t *testing.T, m *Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != "scoremigrate_ddl_statements_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
