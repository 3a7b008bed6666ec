package preprocessing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
	"roadsafety/internal/preprocessing"
)

func snt(t *testing.T) *data.Table {
	t.Helper()
	tbl, err := data.NewTable(
		data.NewFloatColumn("População", []float64{15000, 25000, 40000, nan, 90000}),
		data.NewFloatColumn("IDHM", []float64{0.6, 0.7, nan, 0.8, 0.75}),
		data.NewFloatColumn("Sinistros", []float64{1, 2, 3, 4, 5}),
		data.NewStringColumn("Integrado ao SNT", []string{"Sim", "Não", "Sim", "Não", "Não"}),
		data.NewStringColumn("UF", []string{"SP", "RJ", "SP", "MG", "MG"}),
	)
	require.NoError(t, err)
	return tbl
}

func sntSelection() preprocessing.Selection {
	return preprocessing.Selection{
		Features: []string{"IDHM", "Sinistros"},
		Target:   "Integrado ao SNT",
		Remap:    map[string]float64{"Sim": 1, "Não": 0},
		Filters:  []preprocessing.RowFilter{{Column: "População", Op: preprocessing.OpGreater, Value: "20000"}},
	}
}

func TestSelect(t *testing.T) {
	ds, err := preprocessing.Select(snt(t), sntSelection())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 4}, ds.Rows, "missing population never passes the filter")
	assert.Equal(t, []string{"IDHM", "Sinistros"}, ds.Features)
	assert.Equal(t, []float64{0, 1, 0}, ds.Y)
	require.Len(t, ds.X, 3)
	assert.Equal(t, 0.7, ds.X[0][0])
	assert.True(t, math.IsNaN(ds.X[1][0]))
	assert.Equal(t, 5.0, ds.X[2][1])
}

func TestSelectErrors(t *testing.T) {
	t.Run("unmapped label", func(t *testing.T) {
		s := sntSelection()
		s.Remap = map[string]float64{"Sim": 1}
		_, err := preprocessing.Select(snt(t), s)

		var pe *perrors.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, perrors.KindUnmappedLabel, pe.Kind)
		assert.Equal(t, "Integrado ao SNT", pe.Column)
		assert.Equal(t, "Não", pe.Value)
	})

	t.Run("missing feature", func(t *testing.T) {
		s := sntSelection()
		s.Features = append(s.Features, "PIB per capita")
		_, err := preprocessing.Select(snt(t), s)
		assert.ErrorIs(t, err, perrors.ErrColumnNotFound)
	})

	t.Run("missing target", func(t *testing.T) {
		s := sntSelection()
		s.Target = "SNT"
		_, err := preprocessing.Select(snt(t), s)
		assert.ErrorIs(t, err, perrors.ErrColumnNotFound)
	})

	t.Run("categorical feature", func(t *testing.T) {
		s := sntSelection()
		s.Features = []string{"UF"}
		_, err := preprocessing.Select(snt(t), s)
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("categorical target without remap", func(t *testing.T) {
		s := sntSelection()
		s.Remap = nil
		_, err := preprocessing.Select(snt(t), s)
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("ordering operator on categorical filter", func(t *testing.T) {
		s := sntSelection()
		s.Filters = []preprocessing.RowFilter{{Column: "UF", Op: preprocessing.OpGreater, Value: "SP"}}
		_, err := preprocessing.Select(snt(t), s)
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})
}

func TestSelectFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters []preprocessing.RowFilter
		rows    []int
	}{
		{"no filter", nil, []int{0, 1, 2, 3, 4}},
		{"greater or equal", []preprocessing.RowFilter{{Column: "População", Op: ">=", Value: "40000"}}, []int{2, 4}},
		{"less", []preprocessing.RowFilter{{Column: "População", Op: "<", Value: "25000"}}, []int{0}},
		{"not null", []preprocessing.RowFilter{{Column: "IDHM", Op: "notnull"}}, []int{0, 1, 3, 4}},
		{"categorical equality", []preprocessing.RowFilter{{Column: "UF", Op: "==", Value: "MG"}}, []int{3, 4}},
		{"conjunction", []preprocessing.RowFilter{
			{Column: "UF", Op: "!=", Value: "MG"},
			{Column: "Sinistros", Op: "<=", Value: "2"},
		}, []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sntSelection()
			s.Filters = tt.filters
			ds, err := preprocessing.Select(snt(t), s)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, ds.Rows)
		})
	}
}

func TestRemapRoundTrip(t *testing.T) {
	ds, err := preprocessing.Select(snt(t), preprocessing.Selection{
		Features: []string{"Sinistros"},
		Target:   "Integrado ao SNT",
		Remap:    map[string]float64{"Sim": 1, "Não": 0},
	})
	require.NoError(t, err)

	labels, err := ds.Labels.Inverse(ds.Y)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sim", "Não", "Sim", "Não", "Não"}, labels)
	assert.Equal(t, []string{"Não", "Sim"}, ds.Labels.Classes())

	_, err = ds.Labels.Decode(2)
	assert.Error(t, err)
}

func TestEncodeTarget(t *testing.T) {
	ds, err := preprocessing.Select(snt(t), preprocessing.Selection{
		Features:     []string{"Sinistros"},
		Target:       "UF",
		EncodeTarget: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 2, 0, 0}, ds.Y)
	assert.Equal(t, []string{"MG", "RJ", "SP"}, ds.Labels.Classes())
}

func TestDatasetSubset(t *testing.T) {
	ds, err := preprocessing.Select(snt(t), sntSelection())
	require.NoError(t, err)

	sub := ds.Subset([]int{2, 0})
	assert.Equal(t, []int{4, 1}, sub.Rows)
	sub.X[0][0] = -1
	assert.Equal(t, 0.75, ds.X[2][0])
}
