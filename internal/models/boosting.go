package models

import (
	"fmt"
	"math"
)

// GradientBoosting fits shallow regression trees to the negative gradient of
// the loss: squared error for regression, binary log loss for
// classification. Multiclass targets train one booster per class.
type GradientBoosting struct {
	BaseModel
	NTrees          int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	NFeatures       int
	// Init[k] is the starting score of booster k and Stages[k] its trees.
	Init   []float64
	Stages [][]*DecisionTree
}

func NewGradientBoosting(nTrees int, learningRate float64, maxDepth int) *GradientBoosting {
	return newGradientBoosting(Classification, nTrees, learningRate, maxDepth)
}

func NewGradientBoostingRegressor(nTrees int, learningRate float64, maxDepth int) *GradientBoosting {
	return newGradientBoosting(Regression, nTrees, learningRate, maxDepth)
}

func newGradientBoosting(task Task, nTrees int, learningRate float64, maxDepth int) *GradientBoosting {
	if nTrees <= 0 {
		nTrees = 300
	}
	if learningRate <= 0 {
		learningRate = 0.05
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &GradientBoosting{
		NTrees:          nTrees,
		LearningRate:    learningRate,
		MaxDepth:        maxDepth,
		MinSamplesSplit: 2,
		BaseModel: BaseModel{
			Type: "GradientBoosting",
			Mode: task,
			Params: map[string]any{
				"n_trees":       nTrees,
				"learning_rate": learningRate,
				"max_depth":     maxDepth,
			},
		},
	}
}

func (gb *GradientBoosting) Fit(X [][]float64, y []float64) error {
	if err := checkFit("GradientBoosting.Fit", X, y); err != nil {
		return err
	}
	gb.NFeatures = len(X[0])

	if gb.Mode == Regression {
		gb.Init = []float64{mean(y)}
		stages, err := gb.boost(X, y, gb.Init[0], false)
		if err != nil {
			return err
		}
		gb.Stages = [][]*DecisionTree{stages}
		gb.Fitted = true
		return nil
	}

	gb.Classes = ExtractClasses(y)
	if len(gb.Classes) < 2 {
		return fmt.Errorf("gradient boosting needs at least 2 classes, got %d", len(gb.Classes))
	}
	positives := gb.Classes
	if len(gb.Classes) == 2 {
		positives = gb.Classes[1:]
	}

	gb.Init = make([]float64, len(positives))
	gb.Stages = make([][]*DecisionTree, len(positives))
	for k, class := range positives {
		target := make([]float64, len(y))
		for i, label := range y {
			if label == class {
				target[i] = 1
			}
		}
		p := math.Min(math.Max(mean(target), 1e-6), 1-1e-6)
		gb.Init[k] = math.Log(p / (1 - p))

		stages, err := gb.boost(X, target, gb.Init[k], true)
		if err != nil {
			return err
		}
		gb.Stages[k] = stages
	}

	gb.Fitted = true
	return nil
}

func (gb *GradientBoosting) boost(X [][]float64, target []float64, init float64, logistic bool) ([]*DecisionTree, error) {
	scores := make([]float64, len(X))
	for i := range scores {
		scores[i] = init
	}
	residuals := make([]float64, len(X))
	stages := make([]*DecisionTree, 0, gb.NTrees)

	for m := 0; m < gb.NTrees; m++ {
		for i := range residuals {
			if logistic {
				residuals[i] = target[i] - sigmoid(scores[i])
			} else {
				residuals[i] = target[i] - scores[i]
			}
		}

		tree := newDecisionTree(Regression, gb.MaxDepth, gb.MinSamplesSplit)
		if err := tree.Fit(X, residuals); err != nil {
			return nil, fmt.Errorf("stage %d: %w", m, err)
		}
		update, err := tree.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := range scores {
			scores[i] += gb.LearningRate * update[i]
		}
		stages = append(stages, tree)
	}
	return stages, nil
}

func (gb *GradientBoosting) rawScores(X [][]float64) ([][]float64, error) {
	raw := make([][]float64, len(gb.Stages))
	for k, stages := range gb.Stages {
		raw[k] = make([]float64, len(X))
		for i := range X {
			raw[k][i] = gb.Init[k]
		}
		for _, tree := range stages {
			update, err := tree.Predict(X)
			if err != nil {
				return nil, err
			}
			for i := range update {
				raw[k][i] += gb.LearningRate * update[i]
			}
		}
	}
	return raw, nil
}

func (gb *GradientBoosting) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkPredict("GradientBoosting.PredictProba", gb.Fitted, X, gb.NFeatures); err != nil {
		return nil, err
	}
	if gb.Mode == Regression {
		return nil, fmt.Errorf("probabilities are not defined for regression")
	}
	raw, err := gb.rawScores(X)
	if err != nil {
		return nil, err
	}
	proba := make([][]float64, len(X))
	for i := range X {
		if len(raw) == 1 {
			p := sigmoid(raw[0][i])
			proba[i] = []float64{1 - p, p}
			continue
		}
		scores := make([]float64, len(raw))
		for k := range raw {
			scores[k] = sigmoid(raw[k][i])
		}
		proba[i] = normalizeSum(scores)
	}
	return proba, nil
}

func (gb *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict("GradientBoosting.Predict", gb.Fitted, X, gb.NFeatures); err != nil {
		return nil, err
	}
	if gb.Mode == Regression {
		raw, err := gb.rawScores(X)
		if err != nil {
			return nil, err
		}
		return raw[0], nil
	}
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))
	for i := range proba {
		predictions[i] = gb.Classes[argmax(proba[i])]
	}
	return predictions, nil
}

// FeatureImportances sums the split gains of every stage.
func (gb *GradientBoosting) FeatureImportances() []float64 {
	total := make([]float64, gb.NFeatures)
	for _, stages := range gb.Stages {
		for _, tree := range stages {
			for j, v := range tree.Importances {
				total[j] += v
			}
		}
	}
	return normalizeSum(total)
}

func (gb *GradientBoosting) Reset() {
	gb.Init = nil
	gb.Stages = nil
	gb.Classes = nil
	gb.Fitted = false
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
