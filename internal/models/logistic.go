package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is an L2-regularized logistic classifier trained with
// full-batch gradient descent. More than two classes are handled one-vs-rest.
type LogisticRegression struct {
	BaseModel
	C            float64
	LearningRate float64
	MaxIter      int
	Tolerance    float64
	NFeatures    int
	// Weights[k] and Intercepts[k] score class Classes[k] against the rest.
	// A binary problem keeps a single row scoring Classes[1].
	Weights    [][]float64
	Intercepts []float64
}

func NewLogisticRegression(c, learningRate float64, maxIter int) *LogisticRegression {
	if c <= 0 {
		c = 1
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if maxIter <= 0 {
		maxIter = 1000
	}
	return &LogisticRegression{
		C:            c,
		LearningRate: learningRate,
		MaxIter:      maxIter,
		Tolerance:    1e-6,
		BaseModel: BaseModel{
			Type: "LogisticRegression",
			Mode: Classification,
			Params: map[string]any{
				"C":             c,
				"learning_rate": learningRate,
				"max_iter":      maxIter,
			},
		},
	}
}

func (lr *LogisticRegression) Fit(X [][]float64, y []float64) error {
	if err := checkFit("LogisticRegression.Fit", X, y); err != nil {
		return err
	}
	lr.Classes = ExtractClasses(y)
	if len(lr.Classes) < 2 {
		return fmt.Errorf("logistic regression needs at least 2 classes, got %d", len(lr.Classes))
	}
	lr.NFeatures = len(X[0])

	positives := lr.Classes
	if len(lr.Classes) == 2 {
		positives = lr.Classes[1:]
	}

	lr.Weights = make([][]float64, len(positives))
	lr.Intercepts = make([]float64, len(positives))
	target := make([]float64, len(y))
	for k, class := range positives {
		for i, label := range y {
			target[i] = 0
			if label == class {
				target[i] = 1
			}
		}
		lr.Weights[k], lr.Intercepts[k] = lr.fitBinary(X, target)
	}

	lr.Fitted = true
	return nil
}

func (lr *LogisticRegression) fitBinary(X [][]float64, target []float64) ([]float64, float64) {
	n := float64(len(X))
	w := make([]float64, lr.NFeatures)
	grad := make([]float64, lr.NFeatures)
	b := 0.0

	for iter := 0; iter < lr.MaxIter; iter++ {
		for j := range grad {
			grad[j] = w[j] / (lr.C * n)
		}
		gradB := 0.0
		for i, row := range X {
			diff := sigmoid(floats.Dot(w, row)+b) - target[i]
			floats.AddScaled(grad, diff/n, row)
			gradB += diff / n
		}

		floats.AddScaled(w, -lr.LearningRate, grad)
		b -= lr.LearningRate * gradB

		if floats.Norm(grad, 2)+math.Abs(gradB) < lr.Tolerance {
			break
		}
	}
	return w, b
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func (lr *LogisticRegression) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkPredict("LogisticRegression.PredictProba", lr.Fitted, X, lr.NFeatures); err != nil {
		return nil, err
	}
	proba := make([][]float64, len(X))
	for i, row := range X {
		if len(lr.Weights) == 1 {
			p := sigmoid(floats.Dot(lr.Weights[0], row) + lr.Intercepts[0])
			proba[i] = []float64{1 - p, p}
			continue
		}
		scores := make([]float64, len(lr.Weights))
		for k := range lr.Weights {
			scores[k] = sigmoid(floats.Dot(lr.Weights[k], row) + lr.Intercepts[k])
		}
		proba[i] = normalizeSum(scores)
	}
	return proba, nil
}

func (lr *LogisticRegression) Predict(X [][]float64) ([]float64, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))
	for i := range proba {
		predictions[i] = lr.Classes[argmax(proba[i])]
	}
	return predictions, nil
}

// FeatureImportances returns the mean absolute coefficient per feature.
func (lr *LogisticRegression) FeatureImportances() []float64 {
	out := make([]float64, lr.NFeatures)
	for _, w := range lr.Weights {
		for j, v := range w {
			out[j] += math.Abs(v) / float64(len(lr.Weights))
		}
	}
	return out
}

func (lr *LogisticRegression) Reset() {
	lr.Weights = nil
	lr.Intercepts = nil
	lr.Classes = nil
	lr.Fitted = false
}
