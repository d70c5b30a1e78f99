package catalog

import (
	"testing"

	"github.com/satishbabariya/scoremigrate/internal/core/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declared(t *testing.T, c score.Column) *score.Column {
	t.Helper()
	s := score.New()
	g, err := s.AddGrain("g", "1.0", score.Fingerprint{})
	require.NoError(t, err)
	_, err = g.AddTable("t")
	require.NoError(t, err)
	require.NoError(t, g.AddColumn("t", c))
	tbl, _ := g.Table("t")
	col, _ := tbl.Column(c.Name)
	return col
}

func TestColumnInfo_Diff(t *testing.T) {
	tests := []struct {
		name string
		col  score.Column
		info ColumnInfo
		want []Difference
	}{
		{
			name: "identical integer",
			col:  score.IntegerColumn("c").NotNull().WithDefault("5"),
			info: ColumnInfo{Name: "c", Kind: score.KindInteger, Default: "5"},
		},
		{
			name: "nullability",
			col:  score.IntegerColumn("c"),
			info: ColumnInfo{Name: "c", Kind: score.KindInteger},
			want: []Difference{DiffNullable},
		},
		{
			name: "string length",
			col:  score.StringColumn("c", 20),
			info: ColumnInfo{Name: "c", Kind: score.KindString, Length: 10, Nullable: true},
			want: []Difference{DiffType},
		},
		{
			name: "bounded vs unbounded",
			col:  score.TextColumn("c"),
			info: ColumnInfo{Name: "c", Kind: score.KindString, Length: 10, Nullable: true},
			want: []Difference{DiffType},
		},
		{
			name: "float defaults compare numerically",
			col:  score.FloatingColumn("c").WithDefault("1.5"),
			info: ColumnInfo{Name: "c", Kind: score.KindFloating, Nullable: true, Default: "1.50"},
		},
		{
			name: "binary case",
			col:  score.BinaryColumn("c").WithDefault("0xAB"),
			info: ColumnInfo{Name: "c", Kind: score.KindBinary, Nullable: true, Default: "0xab"},
		},
		{
			name: "default removed",
			col:  score.BooleanColumn("c"),
			info: ColumnInfo{Name: "c", Kind: score.KindBoolean, Nullable: true, Default: "false"},
			want: []Difference{DiffDefault},
		},
		{
			name: "time zone",
			col:  score.DateTimeColumn("c", true),
			info: ColumnInfo{Name: "c", Kind: score.KindDateTime, Nullable: true},
			want: []Difference{DiffType},
		},
		{
			name: "identity ignored",
			col:  score.IntegerColumn("c").AsIdentity(),
			info: ColumnInfo{Name: "c", Kind: score.KindInteger},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := declared(t, tt.col)
			assert.Equal(t, tt.want, tt.info.Diff(col))
			assert.Equal(t, len(tt.want) == 0, tt.info.Reflects(col))
		})
	}
}

func TestFKInfo_Signature(t *testing.T) {
	s := score.New()
	g, _ := s.AddGrain("g", "1.0", score.Fingerprint{})
	_, _ = g.AddTable("b")
	require.NoError(t, g.AddColumn("b", score.IntegerColumn("b1").NotNull()))
	require.NoError(t, g.SetPrimaryKey("b", "b1"))
	_, _ = g.AddTable("a")
	require.NoError(t, g.AddColumn("a", score.IntegerColumn("a1").NotNull()))
	require.NoError(t, g.AddColumn("a", score.IntegerColumn("a3")))
	require.NoError(t, g.SetPrimaryKey("a", "a1"))
	require.NoError(t, g.Finalize())
	require.NoError(t, g.AddForeignKey(s, "a", score.ForeignKey{Columns: []string{"a3"}, RefTable: "b", OnDelete: score.FKCascade}))

	tbl, _ := g.Table("a")
	fk := tbl.ForeignKeys()[0]
	observed := FKInfo{
		Name: "whatever_the_engine_called_it", Table: "a", Columns: []string{"a3"},
		RefGrain: "g", RefTable: "b", RefColumns: []string{"b1"}, OnDelete: score.FKCascade,
	}
	assert.Equal(t, SignatureOf(fk), observed.Signature(), "names do not take part in the signature")

	observed.OnUpdate = score.FKSetNull
	assert.NotEqual(t, SignatureOf(fk), observed.Signature())

	assert.True(t, observed.Involves("g", "a", "a3"))
	assert.True(t, observed.Involves("g", "b", "b1"))
	assert.False(t, observed.Involves("g", "a", "a1"))
}

func TestPKInfo_Reflects(t *testing.T) {
	s := score.New()
	g, _ := s.AddGrain("g", "1.0", score.Fingerprint{})
	_, _ = g.AddTable("t")
	require.NoError(t, g.AddColumn("t", score.IntegerColumn("x").NotNull()))
	require.NoError(t, g.AddColumn("t", score.IntegerColumn("y").NotNull()))
	require.NoError(t, g.SetPrimaryKey("t", "y", "x"))
	require.NoError(t, g.Finalize())
	tbl, _ := g.Table("t")

	assert.True(t, PKInfo{Columns: []string{"y", "x"}}.Reflects(tbl))
	assert.False(t, PKInfo{Columns: []string{"x", "y"}}.Reflects(tbl), "composite key order matters")
	assert.True(t, PKInfo{}.Empty())
}
