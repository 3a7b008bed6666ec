package evaluation

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	perrors "roadsafety/internal/errors"
	"roadsafety/internal/models"
)

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// PermutationImportance measures the score drop when each feature column is
// shuffled, averaged over repeats. It works for any fitted model.
func PermutationImportance(model models.Model, task models.Task, X [][]float64, y []float64, repeats int, seed int64) ([]float64, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, perrors.NewInvalidInputError("PermutationImportance", "feature matrix and labels must be non-empty and aligned")
	}
	if repeats <= 0 {
		repeats = 5
	}

	baseline, err := score(model, task, X, y)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	nFeatures := len(X[0])
	importances := make([]float64, nFeatures)
	shuffled := make([][]float64, len(X))
	for i := range X {
		shuffled[i] = append([]float64(nil), X[i]...)
	}

	for j := 0; j < nFeatures; j++ {
		total := 0.0
		for r := 0; r < repeats; r++ {
			perm := rng.Perm(len(X))
			for i := range X {
				shuffled[i][j] = X[perm[i]][j]
			}
			s, err := score(model, task, shuffled, y)
			if err != nil {
				return nil, err
			}
			total += baseline - s
		}
		for i := range X {
			shuffled[i][j] = X[i][j]
		}
		importances[j] = total / float64(repeats)
	}
	return importances, nil
}

func score(model models.Model, task models.Task, X [][]float64, y []float64) (float64, error) {
	pred, err := model.Predict(X)
	if err != nil {
		return 0, err
	}
	report, err := Evaluate(task, y, pred, nil)
	if err != nil {
		return 0, err
	}
	return report.Score(), nil
}

// Normalize scales absolute importances to sum to one so that models can be
// compared; an all-zero input stays zero.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	total := floats.Sum(out)
	if total == 0 {
		return out
	}
	floats.Scale(1/total, out)
	return out
}

// Rank pairs importances with feature names, highest first.
func Rank(features []string, importances []float64) []FeatureImportance {
	ranked := make([]FeatureImportance, 0, len(features))
	for i, name := range features {
		if i < len(importances) {
			ranked = append(ranked, FeatureImportance{Feature: name, Importance: importances[i]})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Importance > ranked[b].Importance
	})
	return ranked
}
