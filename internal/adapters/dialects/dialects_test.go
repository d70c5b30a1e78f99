package dialects

import (
	"testing"

	"github.com/satishbabariya/scoremigrate/internal/adapters/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	drivers := map[dialect.Name]string{
		dialect.SQLite:     "sqlite3",
		dialect.PostgreSQL: "postgres",
		dialect.MySQL:      "mysql",
		dialect.MSSQL:      "sqlserver",
	}
	for _, name := range dialect.Names() {
		t.Run(string(name), func(t *testing.T) {
			a, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, a.Name())
			assert.Equal(t, drivers[name], a.DriverName())
		})
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, dialect.PostgreSQL, a.Name())

	a, err = Parse("sqlserver")
	require.NoError(t, err)
	assert.Equal(t, dialect.MSSQL, a.Name())

	_, err = Parse("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)

	_, err = New(dialect.Name("db2"))
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
