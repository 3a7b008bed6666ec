package data_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

func sampleTable(t *testing.T) *data.Table {
	t.Helper()
	tbl, err := data.NewTable(
		data.NewFloatColumn("km_rodovias_federais", []float64{math.NaN(), 5.0, math.NaN(), 12.0}),
		data.NewStringColumn("UF", []string{"SP", "RJ", "", "SP"}),
		data.NewBoolColumn("capital", []bool{true, false, false, true}),
	)
	require.NoError(t, err)
	return tbl
}

func TestNewTable(t *testing.T) {
	t.Run("rejects ragged columns", func(t *testing.T) {
		_, err := data.NewTable(
			data.NewFloatColumn("a", []float64{1, 2}),
			data.NewFloatColumn("b", []float64{1}),
		)
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := data.NewTable(
			data.NewFloatColumn("a", []float64{1}),
			data.NewFloatColumn("a", []float64{2}),
		)
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})
}

func TestColumnAccess(t *testing.T) {
	tbl := sampleTable(t)

	assert.Equal(t, 4, tbl.NumRows())
	assert.Equal(t, []string{"km_rodovias_federais", "UF", "capital"}, tbl.Columns())

	km, ok := tbl.Column("km_rodovias_federais")
	require.True(t, ok)
	assert.Equal(t, 2, km.MissingCount())
	v, ok := km.Float(1)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)
	_, ok = km.Float(0)
	assert.False(t, ok)

	uf, _ := tbl.Column("UF")
	assert.Equal(t, []string{"RJ", "SP"}, uf.Distinct())
	assert.True(t, uf.IsMissing(2))

	capital, _ := tbl.Column("capital")
	assert.Equal(t, "true", capital.Text(0))
	assert.Equal(t, []float64{1, 0, 0, 1}, capital.Floats())

	_, err := tbl.Lookup("Select", "IDHM")
	assert.ErrorIs(t, err, perrors.ErrColumnNotFound)
}

func TestColumnStatistics(t *testing.T) {
	t.Run("odd median", func(t *testing.T) {
		col := data.NewFloatColumn("area_km2", []float64{100, math.NaN(), 300, 200})
		m, ok := col.Median()
		require.True(t, ok)
		assert.True(t, m.Equal(decimal.NewFromInt(200)))
	})

	t.Run("even median averages middle values", func(t *testing.T) {
		col := data.NewFloatColumn("x", []float64{4, 1, 3, 2})
		m, ok := col.Median()
		require.True(t, ok)
		assert.Equal(t, "2.5", m.String())
	})

	t.Run("mean", func(t *testing.T) {
		col := data.NewFloatColumn("x", []float64{1, 2, math.NaN(), 6})
		m, ok := col.Mean()
		require.True(t, ok)
		assert.Equal(t, "3", m.String())
	})

	t.Run("all missing", func(t *testing.T) {
		col := data.NewFloatColumn("x", []float64{math.NaN(), math.NaN()})
		_, ok := col.Median()
		assert.False(t, ok)
	})
}

func TestTableCopiesAreIndependent(t *testing.T) {
	tbl := sampleTable(t)
	clone := tbl.Clone()
	require.True(t, tbl.Equal(clone))

	col, _ := clone.Column("km_rodovias_federais")
	col.Cells[0] = data.Cell{Num: decimal.Zero, Valid: true}
	assert.False(t, tbl.Equal(clone))

	orig, _ := tbl.Column("km_rodovias_federais")
	assert.True(t, orig.IsMissing(0))
}

func TestTakeFilterSetDrop(t *testing.T) {
	tbl := sampleTable(t)

	sub := tbl.Take([]int{3, 1})
	uf, _ := sub.Column("UF")
	assert.Equal(t, "SP", uf.Text(0))
	assert.Equal(t, "RJ", uf.Text(1))

	capital, _ := tbl.Column("capital")
	filtered, rows := tbl.Filter(func(i int) bool { return capital.Text(i) == "true" })
	assert.Equal(t, []int{0, 3}, rows)
	assert.Equal(t, 2, filtered.NumRows())

	clone := tbl.Clone()
	require.NoError(t, clone.Set(data.NewFloatColumn("IDHM", []float64{0.7, 0.8, 0.6, 0.75})))
	assert.Equal(t, "IDHM", clone.Columns()[3])
	assert.Error(t, clone.Set(data.NewFloatColumn("short", []float64{1})))

	clone.Drop("UF")
	assert.Equal(t, []string{"km_rodovias_federais", "capital", "IDHM"}, clone.Columns())
	_, ok := clone.Column("IDHM")
	assert.True(t, ok)
}

func TestSourceRows(t *testing.T) {
	tbl := sampleTable(t)
	assert.Equal(t, 2, tbl.SourceRow(2))

	uf, _ := tbl.Column("UF")
	kept, _ := tbl.Filter(func(i int) bool { return !uf.IsMissing(i) })
	sub := kept.Take([]int{2, 0})
	assert.Equal(t, 3, sub.SourceRow(0))
	assert.Equal(t, 0, sub.SourceRow(1))
	assert.Equal(t, 3, sub.Clone().SourceRow(0))
}

func TestParseKind(t *testing.T) {
	k, err := data.ParseKind("categorical")
	require.NoError(t, err)
	assert.Equal(t, data.Categorical, k)

	_, err = data.ParseKind("date")
	assert.Error(t, err)
}
