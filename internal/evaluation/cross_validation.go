package evaluation

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"roadsafety/internal/models"
	"roadsafety/internal/preprocessing"
)

type CrossValidator struct {
	NFolds     int
	Stratified bool
	Shuffle    bool
	RandomSeed int64
	Parallel   bool
	MaxWorkers int
	// Transform is fitted on the training rows of every fold.
	Transform preprocessing.TransformConfig
}

// CVResult holds the per-fold score (accuracy or R²) and its summary.
type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

func NewCrossValidator(nFolds int, stratified bool) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Stratified: stratified,
		Shuffle:    true,
		RandomSeed: 42,
		Parallel:   true,
		MaxWorkers: 4,
		Transform:  preprocessing.DefaultTransformConfig(),
	}
}

// CrossValidate trains a backend built from config on every fold, starting
// from an unfitted state each time.
func (cv *CrossValidator) CrossValidate(
	X [][]float64,
	y []float64,
	features []string,
	config models.ModelConfig,
) (*CVResult, error) {

	folds, err := cv.folds(X, y, config.Task)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	errors := make([]error, len(folds))

	workers := cv.MaxWorkers
	if !cv.Parallel || workers <= 0 {
		workers = 1
	}
	if workers > len(folds) {
		workers = len(folds)
	}

	jobs := make(chan int, len(folds))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// One backend per worker, reset before every fold.
			model, err := models.CreateModel(config)
			for i := range jobs {
				if err != nil {
					errors[i] = err
					continue
				}
				model.Reset()
				scores[i], errors[i] = cv.evaluateFold(model, X, y, features, folds[i])
			}
		}()
	}

	for i := range folds {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errors {
		if err != nil {
			return nil, fmt.Errorf("fold %d failed: %w", i, err)
		}
	}

	mean, std := stat.MeanStdDev(scores, nil)
	if len(scores) < 2 {
		std = 0
	}
	return &CVResult{Scores: scores, Mean: mean, Std: std}, nil
}

func (cv *CrossValidator) folds(X [][]float64, y []float64, task models.Task) ([]Partition, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}
	splitter := NewKFoldSplitter(cv.NFolds, cv.Shuffle, cv.RandomSeed)
	if cv.Stratified && task != models.Regression {
		return splitter.StratifiedSplit(y)
	}
	return splitter.Split(len(X))
}

func (cv *CrossValidator) evaluateFold(
	model models.Model,
	X [][]float64,
	y []float64,
	features []string,
	fold Partition,
) (float64, error) {

	XTrain, yTrain := gather(X, y, fold.Train)
	XTest, yTest := gather(X, y, fold.Test)

	transform := preprocessing.NewFeatureTransform(cv.Transform, features)
	XTrain, err := transform.FitApply(XTrain)
	if err != nil {
		return 0, err
	}
	XTest, err = transform.Apply(XTest)
	if err != nil {
		return 0, err
	}

	if err := model.Fit(XTrain, yTrain); err != nil {
		return 0, err
	}

	predictions, err := model.Predict(XTest)
	if err != nil {
		return 0, err
	}

	var classes []float64
	if model.Task() == models.Classification {
		classes = ClassesOf(yTrain)
	}
	report, err := Evaluate(model.Task(), yTest, predictions, classes)
	if err != nil {
		return 0, err
	}
	return report.Score(), nil
}

func gather(X [][]float64, y []float64, indices []int) ([][]float64, []float64) {
	XOut := make([][]float64, len(indices))
	yOut := make([]float64, len(indices))
	for i, idx := range indices {
		XOut[i] = X[idx]
		yOut[i] = y[idx]
	}
	return XOut, yOut
}
