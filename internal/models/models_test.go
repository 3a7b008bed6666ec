package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "roadsafety/internal/errors"
)

// blobs returns two well separated clusters labelled 0 and 1.
func blobs(n int, seed int64) ([][]float64, []float64) {
	r := rand.New(rand.NewSource(seed))
	X := make([][]float64, 0, 2*n)
	y := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		X = append(X, []float64{r.NormFloat64()*0.3 - 2, r.NormFloat64()*0.3 - 2})
		y = append(y, 0)
		X = append(X, []float64{r.NormFloat64()*0.3 + 2, r.NormFloat64()*0.3 + 2})
		y = append(y, 1)
	}
	return X, y
}

// line returns y = 3x0 - 2x1 + 1 with small noise.
func line(n int, seed int64) ([][]float64, []float64) {
	r := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{r.Float64() * 10, r.Float64() * 10}
		y[i] = 3*X[i][0] - 2*X[i][1] + 1 + r.NormFloat64()*0.01
	}
	return X, y
}

func accuracy(t *testing.T, m Model, X [][]float64, y []float64) float64 {
	t.Helper()
	pred, err := m.Predict(X)
	require.NoError(t, err)
	require.Len(t, pred, len(y))
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

func TestClassifiersSeparateBlobs(t *testing.T) {
	X, y := blobs(40, 1)
	XTest, yTest := blobs(10, 2)

	for _, algorithm := range []string{"logistic", "bayes", "tree", "forest", "boosting", "knn"} {
		t.Run(algorithm, func(t *testing.T) {
			cfg := DefaultConfig(algorithm)
			if algorithm == "forest" {
				cfg.NTrees = 15
			}
			if algorithm == "boosting" {
				cfg.NTrees = 30
			}
			m, err := CreateModel(cfg)
			require.NoError(t, err)
			assert.Equal(t, Classification, m.Task())

			require.NoError(t, m.Fit(X, y))
			assert.GreaterOrEqual(t, accuracy(t, m, XTest, yTest), 0.95)

			clf, ok := m.(Classifier)
			require.True(t, ok)
			assert.Equal(t, []float64{0, 1}, clf.GetClasses())
			proba, err := clf.PredictProba(XTest[:2])
			require.NoError(t, err)
			for _, row := range proba {
				require.Len(t, row, 2)
				assert.InDelta(t, 1.0, row[0]+row[1], 1e-9)
			}
		})
	}
}

func TestMulticlass(t *testing.T) {
	X := [][]float64{}
	y := []float64{}
	centers := [][]float64{{0, 0}, {5, 0}, {0, 5}}
	r := rand.New(rand.NewSource(3))
	for c, center := range centers {
		for i := 0; i < 20; i++ {
			X = append(X, []float64{center[0] + r.NormFloat64()*0.3, center[1] + r.NormFloat64()*0.3})
			y = append(y, float64(c))
		}
	}

	for _, algorithm := range []string{"logistic", "boosting", "forest"} {
		t.Run(algorithm, func(t *testing.T) {
			cfg := DefaultConfig(algorithm)
			cfg.NTrees = 20
			m, err := CreateModel(cfg)
			require.NoError(t, err)
			require.NoError(t, m.Fit(X, y))
			assert.GreaterOrEqual(t, accuracy(t, m, X, y), 0.95)
		})
	}
}

func TestRegressors(t *testing.T) {
	X, y := line(200, 4)
	XTest, yTest := line(20, 5)

	tests := []struct {
		algorithm string
		tolerance float64
	}{
		{"linear", 0.05},
		{"boosting", 2.5},
		{"forest", 2.5},
		{"tree", 2.5},
		{"knn", 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			cfg := DefaultConfig(tt.algorithm)
			cfg.Task = Regression
			if tt.algorithm == "forest" {
				cfg.NTrees = 20
			}
			m, err := CreateModel(cfg)
			require.NoError(t, err)
			assert.Equal(t, Regression, m.Task())
			require.NoError(t, m.Fit(X, y))

			pred, err := m.Predict(XTest)
			require.NoError(t, err)
			mae := 0.0
			for i := range pred {
				mae += math.Abs(yTest[i]-pred[i]) / float64(len(pred))
			}
			assert.Less(t, mae, tt.tolerance)
		})
	}
}

func TestLinearRegressionCoefficients(t *testing.T) {
	X, y := line(100, 6)
	lin := NewLinearRegression()
	require.NoError(t, lin.Fit(X, y))

	assert.InDelta(t, 3.0, lin.Coefficients[0], 0.01)
	assert.InDelta(t, -2.0, lin.Coefficients[1], 0.01)
	assert.InDelta(t, 1.0, lin.Intercept, 0.05)
	assert.InDeltaSlice(t, []float64{3, 2}, lin.FeatureImportances(), 0.01)
}

func TestForestDeterministic(t *testing.T) {
	X, y := blobs(30, 7)

	fit := func(parallel bool) *RandomForest {
		rf := NewRandomForest(12, 5, 2, 42)
		rf.Parallel = parallel
		require.NoError(t, rf.Fit(X, y))
		return rf
	}
	a, b, c := fit(true), fit(true), fit(false)

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	pc, err := c.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
	assert.Equal(t, pa, pc)
	assert.Equal(t, a.FeatureIndices, c.FeatureIndices)
}

func TestFeatureImportances(t *testing.T) {
	// Only feature 1 carries signal.
	r := rand.New(rand.NewSource(8))
	X := make([][]float64, 100)
	y := make([]float64, 100)
	for i := range X {
		signal := r.Float64()
		X[i] = []float64{r.Float64(), signal, r.Float64()}
		if signal > 0.5 {
			y[i] = 1
		}
	}

	for _, algorithm := range []string{"tree", "forest", "boosting", "logistic"} {
		t.Run(algorithm, func(t *testing.T) {
			cfg := DefaultConfig(algorithm)
			cfg.NTrees = 20
			m, err := CreateModel(cfg)
			require.NoError(t, err)
			require.NoError(t, m.Fit(X, y))

			imp, ok := m.(Importancer)
			require.True(t, ok)
			values := imp.FeatureImportances()
			require.Len(t, values, 3)
			assert.Greater(t, values[1], values[0])
			assert.Greater(t, values[1], values[2])
		})
	}
}

func TestDecisionTreeSplitsAtMidpoint(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {10}, {11}, {12}}
	y := []float64{0, 0, 0, 1, 1, 1}

	dt := NewDecisionTree(3, 2)
	require.NoError(t, dt.Fit(X, y))

	require.False(t, dt.Root.IsLeaf)
	assert.Equal(t, 0, dt.Root.Feature)
	assert.Equal(t, 6.5, dt.Root.Threshold)
	assert.Equal(t, []float64{1}, dt.FeatureImportances())

	pred, err := dt.Predict([][]float64{{6.4}, {6.5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, pred)
}

func TestNaiveBayesProbabilities(t *testing.T) {
	X, y := blobs(20, 9)
	nb := NewNaiveBayes(1e-9)
	require.NoError(t, nb.Fit(X, y))

	proba, err := nb.PredictProba([][]float64{{-2, -2}, {2, 2}})
	require.NoError(t, err)
	assert.Greater(t, proba[0][0], 0.99)
	assert.Greater(t, proba[1][1], 0.99)
	assert.InDelta(t, math.Log(0.5), nb.ClassLogPriors[0], 1e-12)
}

func TestKNNTiesBrokenByIndex(t *testing.T) {
	X := [][]float64{{0}, {2}, {1}}
	y := []float64{5, 7, 9}

	knn := NewKNNRegressor(2, "manhattan")
	require.NoError(t, knn.Fit(X, y))
	pred, err := knn.Predict([][]float64{{1}})
	require.NoError(t, err)
	// Distances 1, 1, 0: the exact match then the first of the tied rows.
	assert.Equal(t, []float64{7}, pred)
}

func TestResetForgetsFit(t *testing.T) {
	X, y := blobs(30, 5)

	for _, algorithm := range []string{"logistic", "bayes", "tree", "forest", "boosting", "knn"} {
		t.Run(algorithm, func(t *testing.T) {
			m, err := CreateModel(DefaultConfig(algorithm))
			require.NoError(t, err)
			require.NoError(t, m.Fit(X, y))
			first, err := m.Predict(X)
			require.NoError(t, err)

			m.Reset()
			_, err = m.Predict(X)
			assert.ErrorIs(t, err, perrors.ErrInvalidInput)

			require.NoError(t, m.Fit(X, y))
			again, err := m.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		})
	}
}

func TestModelErrors(t *testing.T) {
	t.Run("predict before fit", func(t *testing.T) {
		_, err := NewDecisionTree(3, 2).Predict([][]float64{{1}})
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := NewNaiveBayes(1e-9).Fit([][]float64{{1}, {2}}, []float64{0})
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("wrong width", func(t *testing.T) {
		lin := NewLinearRegression()
		require.NoError(t, lin.Fit([][]float64{{1}, {2}, {3}}, []float64{1, 2, 3}))
		_, err := lin.Predict([][]float64{{1, 2}})
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("single class", func(t *testing.T) {
		err := NewLogisticRegression(1, 0.1, 10).Fit([][]float64{{1}, {2}}, []float64{1, 1})
		assert.Error(t, err)
	})
}

func TestCreateModel(t *testing.T) {
	tests := []struct {
		name    string
		config  ModelConfig
		want    string
		wantErr bool
	}{
		{"forest", ModelConfig{Algorithm: "forest", Name: "rf500", NTrees: 500}, "rf500", false},
		{"logistic", ModelConfig{Algorithm: "logistic"}, "LogisticRegression", false},
		{"linear regression", ModelConfig{Algorithm: "linear", Task: Regression}, "LinearRegression", false},
		{"linear classification", ModelConfig{Algorithm: "linear"}, "", true},
		{"bayes regression", ModelConfig{Algorithm: "bayes", Task: Regression}, "", true},
		{"unknown task", ModelConfig{Algorithm: "tree", Task: "ranking"}, "", true},
		{"unknown algorithm", ModelConfig{Algorithm: "svm"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CreateModel(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.GetName())
		})
	}

	m, err := CreateModel(ModelConfig{Algorithm: "forest", NTrees: 500, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, 500, m.GetParams()["n_trees"])
	assert.Equal(t, int64(7), m.(*RandomForest).Seed)
	assert.Equal(t, 10, m.(*RandomForest).MaxDepth)
}
