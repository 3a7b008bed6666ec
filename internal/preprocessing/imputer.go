package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	perrors "roadsafety/internal/errors"
)

// Imputer replaces NaN with per-column statistics learned by Fit.
type Imputer struct {
	Strategy     string
	FeatureNames []string
	Statistics   []float64
	IsFitted     bool
}

func NewImputer(strategy string, features []string) *Imputer {
	return &Imputer{Strategy: strategy, FeatureNames: features}
}

func (im *Imputer) Fit(X [][]float64) error {
	if len(X) == 0 {
		return perrors.NewInvalidInputError("Impute", "empty dataset")
	}

	nFeatures := len(X[0])
	im.Statistics = make([]float64, nFeatures)
	for j := 0; j < nFeatures; j++ {
		values := make([]float64, 0, len(X))
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				values = append(values, X[i][j])
			}
		}
		if len(values) == 0 {
			return perrors.NewEmptyColumnError("Impute", featureName(im.FeatureNames, j))
		}

		switch im.Strategy {
		case "median", "":
			sort.Float64s(values)
			im.Statistics[j] = medianSorted(values)
		case "mean":
			im.Statistics[j] = stat.Mean(values, nil)
		default:
			return perrors.NewInvalidInputError("Impute", fmt.Sprintf("unknown impute strategy: %s", im.Strategy))
		}
	}

	im.IsFitted = true
	return nil
}

// Transform returns a copy of X with NaN filled; statistics are never refit.
func (im *Imputer) Transform(X [][]float64) ([][]float64, error) {
	if !im.IsFitted {
		return nil, perrors.NewInvalidInputError("Impute", "imputer must be fitted before transform")
	}

	result := make([][]float64, len(X))
	for i := range X {
		if len(X[i]) != len(im.Statistics) {
			return nil, perrors.NewInvalidInputError("Impute",
				fmt.Sprintf("sample %d has %d features, expected %d", i, len(X[i]), len(im.Statistics)))
		}
		result[i] = make([]float64, len(X[i]))
		for j, v := range X[i] {
			if math.IsNaN(v) {
				v = im.Statistics[j]
			}
			result[i][j] = v
		}
	}
	return result, nil
}

func medianSorted(values []float64) float64 {
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func featureName(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return fmt.Sprintf("feature_%d", j)
}
