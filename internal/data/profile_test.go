package data_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

func TestProfile(t *testing.T) {
	profiles := data.Profile(sampleTable(t))
	require.Len(t, profiles, 3)

	km := profiles[0]
	assert.Equal(t, "km_rodovias_federais", km.Name)
	assert.Equal(t, 2, km.Missing)
	assert.InDelta(t, 50.0, km.MissingPct, 1e-9)
	assert.Equal(t, 5.0, km.Min)
	assert.Equal(t, 12.0, km.Max)
	assert.InDelta(t, 8.5, km.Mean, 1e-9)
	assert.InDelta(t, 8.5, km.Median, 1e-9)

	uf := profiles[1]
	assert.Equal(t, 2, uf.Distinct)
	assert.True(t, math.IsNaN(uf.Mean))
}

func TestDataValidator(t *testing.T) {
	dv := data.NewDataValidator()

	tests := []struct {
		name    string
		X       [][]float64
		y       []float64
		wantErr bool
	}{
		{"valid", [][]float64{{1, 2}, {3, 4}}, []float64{0, 1}, false},
		{"missing values allowed before imputation", [][]float64{{math.NaN(), 2}, {3, 4}}, []float64{0, 1}, false},
		{"empty", nil, nil, true},
		{"length mismatch", [][]float64{{1}}, []float64{0, 1}, true},
		{"ragged", [][]float64{{1, 2}, {3}}, []float64{0, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dv.ValidateDataset(tt.X, tt.y)
			if tt.wantErr {
				assert.ErrorIs(t, err, perrors.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, dv.ValidateFinite([][]float64{{1, math.Inf(1)}}))
	assert.NoError(t, dv.ValidateFinite([][]float64{{1, 2}}))
	assert.Error(t, dv.ValidateLabels([]float64{1, 1, 1}))
	assert.NoError(t, dv.ValidateLabels([]float64{0, 1}))
}
