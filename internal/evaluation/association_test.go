package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

func TestCorrelations(t *testing.T) {
	nan := math.NaN()
	X := [][]float64{
		{1, 2, 5},
		{2, 4, 5},
		{3, 6, 5},
		{4, nan, 5},
	}
	y := []float64{4, 3, 2, 1}

	m, err := Correlations([]string{"velocidade", "dobro", "constante"}, X, "gravidade", y)
	require.NoError(t, err)
	assert.Equal(t, []string{"velocidade", "dobro", "constante", "gravidade"}, m.Names)

	r, ok := m.Get("velocidade", "dobro")
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, _ = m.Get("gravidade", "velocidade")
	assert.InDelta(t, -1.0, r, 1e-12)

	r, _ = m.Get("constante", "gravidade")
	assert.True(t, math.IsNaN(r))

	assert.InDelta(t, 1.0, m.Values[0][0], 1e-12)
	_, ok = m.Get("velocidade", "idade")
	assert.False(t, ok)

	_, err = Correlations([]string{"a"}, X[:2], "y", y)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

// crosstab expands counts[i][j] into that many records of (rows[i], cols[j]).
func crosstab(t *testing.T, rows, cols []string, counts [][]int) *data.Table {
	t.Helper()
	var pista, causa []string
	for i, r := range rows {
		for j, c := range cols {
			for k := 0; k < counts[i][j]; k++ {
				pista = append(pista, r)
				causa = append(causa, c)
			}
		}
	}
	// Records missing either side are ignored.
	pista = append(pista, "", "dupla")
	causa = append(causa, "Velocidade", "")

	tbl, err := data.NewTable(
		data.NewStringColumn("tipo_pista", pista),
		data.NewStringColumn("causa_acidente", causa),
	)
	require.NoError(t, err)
	return tbl
}

func TestContingency(t *testing.T) {
	t.Run("two by two with continuity correction", func(t *testing.T) {
		tbl := crosstab(t, []string{"dupla", "simples"}, []string{"Álcool", "Velocidade"},
			[][]int{{10, 20}, {30, 40}})

		ct, err := NewContingency(tbl, "tipo_pista", "causa_acidente", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"dupla", "simples"}, ct.RowLevels)
		assert.Equal(t, []string{"Velocidade", "Álcool"}, ct.ColLevels)
		assert.Equal(t, [][]int{{20, 10}, {40, 30}}, ct.Counts)
		assert.Equal(t, 100, ct.N)
		assert.Equal(t, 1, ct.DegreesFreedom)
		assert.InDelta(t, 0.446429, ct.ChiSquare, 1e-5)
		assert.InDelta(t, 0.504, ct.PValue, 0.005)
		assert.False(t, ct.Significant())
	})

	t.Run("larger table", func(t *testing.T) {
		tbl := crosstab(t, []string{"dupla", "simples"}, []string{"a", "b", "c"},
			[][]int{{10, 20, 30}, {20, 20, 20}})

		ct, err := NewContingency(tbl, "tipo_pista", "causa_acidente", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, ct.DegreesFreedom)
		assert.InDelta(t, 16.0/3, ct.ChiSquare, 1e-9)
		assert.InDelta(t, math.Exp(-8.0/3), ct.PValue, 1e-9)

		shares := ct.RowShares()
		assert.InDelta(t, 0.5, shares[0][0], 1e-12)
	})

	t.Run("top column levels", func(t *testing.T) {
		tbl := crosstab(t, []string{"dupla", "simples"}, []string{"a", "b", "c"},
			[][]int{{10, 20, 30}, {20, 20, 20}})

		ct, err := NewContingency(tbl, "tipo_pista", "causa_acidente", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, ct.ColLevels)
		assert.Equal(t, 90, ct.N)
	})

	t.Run("single row level", func(t *testing.T) {
		tbl := crosstab(t, []string{"dupla"}, []string{"a", "b"}, [][]int{{3, 4}})

		ct, err := NewContingency(tbl, "tipo_pista", "causa_acidente", 0)
		require.NoError(t, err)
		assert.Zero(t, ct.DegreesFreedom)
		assert.Equal(t, 1.0, ct.PValue)
	})

	t.Run("unknown column", func(t *testing.T) {
		tbl := crosstab(t, []string{"dupla"}, []string{"a"}, [][]int{{1}})
		_, err := NewContingency(tbl, "tipo_pista", "fase_dia", 0)
		assert.ErrorIs(t, err, perrors.ErrColumnNotFound)
	})
}
