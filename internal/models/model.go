package models

import (
	"fmt"
	"sort"

	perrors "roadsafety/internal/errors"
)

type Task string

const (
	Classification Task = "classification"
	Regression     Task = "regression"
)

func ParseTask(s string) (Task, error) {
	switch Task(s) {
	case Classification, "":
		return Classification, nil
	case Regression:
		return Regression, nil
	default:
		return "", fmt.Errorf("unknown task: %s", s)
	}
}

type Model interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	GetType() string
	GetName() string
	GetParams() map[string]any
	Task() Task
	Reset()
}

// Classifier is implemented by models that expose class probabilities.
type Classifier interface {
	Model
	GetClasses() []float64
	PredictProba(X [][]float64) ([][]float64, error)
}

// Importancer is implemented by models with built-in feature importances,
// one per input column.
type Importancer interface {
	FeatureImportances() []float64
}

type BaseModel struct {
	Type    string
	Name    string
	Params  map[string]any
	Classes []float64
	Mode    Task
	Fitted  bool
}

func (bm *BaseModel) GetType() string {
	return bm.Type
}

func (bm *BaseModel) GetName() string {
	if bm.Name == "" {
		return bm.Type
	}
	return bm.Name
}

func (bm *BaseModel) SetName(name string) {
	bm.Name = name
}

func (bm *BaseModel) GetParams() map[string]any {
	return bm.Params
}

func (bm *BaseModel) GetClasses() []float64 {
	return bm.Classes
}

func (bm *BaseModel) Task() Task {
	return bm.Mode
}

// ExtractClasses returns the distinct labels in ascending order.
func ExtractClasses(y []float64) []float64 {
	classMap := make(map[float64]bool)
	for _, label := range y {
		classMap[label] = true
	}

	classes := make([]float64, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	sort.Float64s(classes)

	return classes
}

func checkFit(op string, X [][]float64, y []float64) error {
	if len(X) == 0 {
		return perrors.NewInvalidInputError(op, "training set is empty")
	}
	if len(X) != len(y) {
		return perrors.NewInvalidInputError(op,
			fmt.Sprintf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y)))
	}
	if len(X[0]) == 0 {
		return perrors.NewInvalidInputError(op, "features cannot be empty")
	}
	return nil
}

func checkPredict(op string, fitted bool, X [][]float64, nFeatures int) error {
	if !fitted {
		return perrors.NewInvalidInputError(op, "model must be fitted before predict")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return perrors.NewInvalidInputError(op,
				fmt.Sprintf("sample %d has %d features, expected %d", i, len(row), nFeatures))
		}
	}
	return nil
}

// argmax returns the first index of the largest value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func normalizeSum(values []float64) []float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	out := make([]float64, len(values))
	if total == 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
