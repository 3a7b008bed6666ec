package models

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// RandomForest bags CART trees, each grown on a bootstrap sample and a random
// feature subset. Tree i is seeded with Seed+i, so results do not depend on
// worker scheduling.
type RandomForest struct {
	BaseModel
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
	NFeatures       int
	Trees           []*DecisionTree
	FeatureIndices  [][]int
	Parallel        bool
	MaxWorkers      int
}

func NewRandomForest(nTrees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	return newRandomForest(Classification, nTrees, maxDepth, minSamplesSplit, seed)
}

func NewRandomForestRegressor(nTrees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	return newRandomForest(Regression, nTrees, maxDepth, minSamplesSplit, seed)
}

func newRandomForest(task Task, nTrees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	return &RandomForest{
		NTrees:          nTrees,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Seed:            seed,
		Parallel:        true,
		MaxWorkers:      4,
		BaseModel: BaseModel{
			Type: "RandomForest",
			Mode: task,
			Params: map[string]any{
				"n_trees":           nTrees,
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
				"seed":              seed,
			},
		},
	}
}

func (rf *RandomForest) Fit(X [][]float64, y []float64) error {
	if err := checkFit("RandomForest.Fit", X, y); err != nil {
		return err
	}
	if rf.NTrees <= 0 {
		return fmt.Errorf("random forest needs at least one tree, got %d", rf.NTrees)
	}
	if rf.Mode == Classification {
		rf.Classes = ExtractClasses(y)
	}
	rf.NFeatures = len(X[0])

	rf.MaxFeatures = rf.NFeatures
	if rf.Mode == Classification {
		rf.MaxFeatures = int(math.Sqrt(float64(rf.NFeatures)))
	}
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	rf.Trees = make([]*DecisionTree, rf.NTrees)
	rf.FeatureIndices = make([][]int, rf.NTrees)

	var err error
	if rf.Parallel {
		err = rf.trainParallel(X, y)
	} else {
		err = rf.trainSequential(X, y)
	}
	if err != nil {
		return err
	}
	rf.Fitted = true
	return nil
}

func (rf *RandomForest) trainParallel(X [][]float64, y []float64) error {
	var wg sync.WaitGroup
	errors := make([]error, rf.NTrees)

	workers := rf.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > rf.NTrees {
		workers = rf.NTrees
	}

	jobs := make(chan int, rf.NTrees)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				tree, features, err := rf.trainSingleTree(X, y, rf.Seed+int64(i))
				rf.Trees[i] = tree
				rf.FeatureIndices[i] = features
				errors[i] = err
			}
		}()
	}

	for i := 0; i < rf.NTrees; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errors {
		if err != nil {
			return fmt.Errorf("tree %d training failed: %w", i, err)
		}
	}

	return nil
}

func (rf *RandomForest) trainSequential(X [][]float64, y []float64) error {
	for i := 0; i < rf.NTrees; i++ {
		tree, features, err := rf.trainSingleTree(X, y, rf.Seed+int64(i))
		if err != nil {
			return fmt.Errorf("tree %d training failed: %w", i, err)
		}
		rf.Trees[i] = tree
		rf.FeatureIndices[i] = features
	}
	return nil
}

func (rf *RandomForest) trainSingleTree(X [][]float64, y []float64, seed int64) (*DecisionTree, []int, error) {
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	features := rf.selectRandomFeatures(rf.NFeatures, r)

	XSelected := make([][]float64, n)
	yBoot := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := r.Intn(n)
		XSelected[i] = make([]float64, len(features))
		for j, feat := range features {
			XSelected[i][j] = X[idx][feat]
		}
		yBoot[i] = y[idx]
	}

	tree := newDecisionTree(rf.Mode, rf.MaxDepth, rf.MinSamplesSplit)
	err := tree.Fit(XSelected, yBoot)

	return tree, features, err
}

func (rf *RandomForest) selectRandomFeatures(nFeatures int, r *rand.Rand) []int {
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}

	for i := 0; i < rf.MaxFeatures && i < nFeatures; i++ {
		j := i + r.Intn(nFeatures-i)
		features[i], features[j] = features[j], features[i]
	}

	return features[:rf.MaxFeatures]
}

func (rf *RandomForest) treeInput(j int, sample []float64) [][]float64 {
	selected := make([]float64, len(rf.FeatureIndices[j]))
	for k, feat := range rf.FeatureIndices[j] {
		selected[k] = sample[feat]
	}
	return [][]float64{selected}
}

// Predict takes the majority vote (smallest class on ties) or the mean of
// the trees.
func (rf *RandomForest) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict("RandomForest.Predict", rf.Fitted, X, rf.NFeatures); err != nil {
		return nil, err
	}
	if rf.Mode == Regression {
		predictions := make([]float64, len(X))
		for i, sample := range X {
			sum := 0.0
			for j, tree := range rf.Trees {
				p, err := tree.Predict(rf.treeInput(j, sample))
				if err != nil {
					return nil, err
				}
				sum += p[0]
			}
			predictions[i] = sum / float64(len(rf.Trees))
		}
		return predictions, nil
	}

	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))
	for i := range proba {
		predictions[i] = rf.Classes[argmax(proba[i])]
	}
	return predictions, nil
}

// PredictProba returns the share of trees voting for each class.
func (rf *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkPredict("RandomForest.PredictProba", rf.Fitted, X, rf.NFeatures); err != nil {
		return nil, err
	}
	classIdx := make(map[float64]int, len(rf.Classes))
	for i, c := range rf.Classes {
		classIdx[c] = i
	}

	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = make([]float64, len(rf.Classes))
		for j, tree := range rf.Trees {
			p, err := tree.Predict(rf.treeInput(j, sample))
			if err != nil {
				return nil, err
			}
			proba[i][classIdx[p[0]]]++
		}
		for k := range proba[i] {
			proba[i][k] /= float64(len(rf.Trees))
		}
	}

	return proba, nil
}

// FeatureImportances averages the trees' normalized importances, mapped back
// to the input columns.
func (rf *RandomForest) FeatureImportances() []float64 {
	total := make([]float64, rf.NFeatures)
	for j, tree := range rf.Trees {
		for k, imp := range tree.FeatureImportances() {
			total[rf.FeatureIndices[j][k]] += imp
		}
	}
	return normalizeSum(total)
}

func (rf *RandomForest) Reset() {
	rf.Trees = nil
	rf.FeatureIndices = nil
	rf.Classes = nil
	rf.Fitted = false
}
