package preprocessing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "roadsafety/internal/errors"
	"roadsafety/internal/preprocessing"
)

func TestImputer(t *testing.T) {
	X := [][]float64{{1, nan}, {nan, 4}, {3, 6}, {10, 5}}

	t.Run("median", func(t *testing.T) {
		im := preprocessing.NewImputer("median", []string{"a", "b"})
		require.NoError(t, im.Fit(X))
		assert.Equal(t, []float64{3, 5}, im.Statistics)

		out, err := im.Transform(X)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 5}, out[0])
		assert.Equal(t, []float64{3, 4}, out[1])
		assert.True(t, math.IsNaN(X[0][1]), "input keeps its NaN")
	})

	t.Run("mean", func(t *testing.T) {
		im := preprocessing.NewImputer("mean", nil)
		require.NoError(t, im.Fit(X))
		assert.Equal(t, []float64{14.0 / 3, 5}, im.Statistics)
	})

	t.Run("all missing column", func(t *testing.T) {
		im := preprocessing.NewImputer("median", []string{"a", "IDHM"})
		err := im.Fit([][]float64{{1, nan}, {2, nan}})
		var pe *perrors.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, perrors.KindEmptyColumn, pe.Kind)
		assert.Equal(t, "IDHM", pe.Column)
	})

	t.Run("transform before fit", func(t *testing.T) {
		_, err := preprocessing.NewImputer("median", nil).Transform(X)
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})
}

func TestScaler(t *testing.T) {
	X := [][]float64{{1, 7}, {3, 7}, {5, 7}}

	t.Run("standard with zero variance column", func(t *testing.T) {
		s := preprocessing.NewScaler("standard")
		s.FeatureNames = []string{"Sinistros", "constante"}
		out, err := s.FitTransform(X)
		require.NoError(t, err)

		assert.InDelta(t, 3.0, s.FeatureMean[0], 1e-12)
		assert.InDelta(t, 1.632993161855452, s.FeatureStd[0], 1e-12)
		assert.InDelta(t, -1.224744871391589, out[0][0], 1e-12)
		assert.Equal(t, []float64{0, 0, 0}, []float64{out[0][1], out[1][1], out[2][1]})

		require.Len(t, s.Warnings(), 1)
		assert.ErrorIs(t, s.Warnings()[0], perrors.ErrZeroVariance)
	})

	t.Run("strict variance", func(t *testing.T) {
		s := preprocessing.NewScaler("standard")
		s.StrictVariance = true
		assert.ErrorIs(t, s.Fit(X), perrors.ErrZeroVariance)
	})

	t.Run("minmax", func(t *testing.T) {
		out, err := preprocessing.NewScaler("minmax").FitTransform(X)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0.5, 1}, []float64{out[0][0], out[1][0], out[2][0]})
		assert.Equal(t, 0.0, out[1][1])
	})

	t.Run("none", func(t *testing.T) {
		out, err := preprocessing.NewScaler("none").FitTransform(X)
		require.NoError(t, err)
		assert.Equal(t, X, out)
	})

	t.Run("unknown type", func(t *testing.T) {
		assert.Error(t, preprocessing.NewScaler("robust").Fit(X))
	})
}

func TestFeatureTransformIgnoresTestPartition(t *testing.T) {
	train := [][]float64{{1, nan}, {2, 20}, {nan, 30}, {4, 40}}
	test := [][]float64{{100, 1000}, {nan, nan}}

	fit := func(test [][]float64) *preprocessing.FeatureTransform {
		ft := preprocessing.NewFeatureTransform(preprocessing.DefaultTransformConfig(), []string{"a", "b"})
		require.NoError(t, ft.Fit(train))
		_, err := ft.Apply(test)
		require.NoError(t, err)
		return ft
	}

	before := fit(test)
	perturbed := [][]float64{{-5e6, 3}, {7, nan}}
	after := fit(perturbed)

	assert.Equal(t, before.Imputer.Statistics, after.Imputer.Statistics)
	assert.Equal(t, before.Scaler.FeatureMean, after.Scaler.FeatureMean)
	assert.Equal(t, before.Scaler.FeatureStd, after.Scaler.FeatureStd)

	out, err := before.Apply(test)
	require.NoError(t, err)
	assert.InDelta(t, (2-before.Scaler.FeatureMean[0])/before.Scaler.FeatureStd[0], out[1][0], 1e-12)
}

func TestFeatureTransformRequiresFit(t *testing.T) {
	ft := preprocessing.NewFeatureTransform(preprocessing.DefaultTransformConfig(), nil)
	_, err := ft.Apply([][]float64{{1}})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}
