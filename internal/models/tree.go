package models

import (
	"math"
	"sort"
)

type TreeNode struct {
	IsLeaf    bool
	Value     float64
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Samples   int
	Impurity  float64
	// Distribution holds per-class sample fractions at classification leaves.
	Distribution     []float64
	ImpurityDecrease float64
}

// DecisionTree is a CART tree: gini impurity for classification, variance
// for regression. Samples with x < Threshold go left.
type DecisionTree struct {
	BaseModel
	Root                *TreeNode
	MaxDepth            int
	MinSamplesSplit     int
	MinImpurityDecrease float64
	NFeatures           int
	Importances         []float64

	classIndex map[float64]int
}

func NewDecisionTree(maxDepth, minSamplesSplit int) *DecisionTree {
	return newDecisionTree(Classification, maxDepth, minSamplesSplit)
}

func NewDecisionTreeRegressor(maxDepth, minSamplesSplit int) *DecisionTree {
	return newDecisionTree(Regression, maxDepth, minSamplesSplit)
}

func newDecisionTree(task Task, maxDepth, minSamplesSplit int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	if minSamplesSplit <= 0 {
		minSamplesSplit = 2
	}

	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		BaseModel: BaseModel{
			Type: "DecisionTree",
			Mode: task,
			Params: map[string]any{
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
			},
		},
	}
}

func (dt *DecisionTree) Fit(X [][]float64, y []float64) error {
	if err := checkFit("DecisionTree.Fit", X, y); err != nil {
		return err
	}
	dt.NFeatures = len(X[0])
	dt.Importances = make([]float64, dt.NFeatures)
	if dt.Mode == Classification {
		dt.Classes = ExtractClasses(y)
		dt.classIndex = make(map[float64]int, len(dt.Classes))
		for i, c := range dt.Classes {
			dt.classIndex[c] = i
		}
	}

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	dt.Root = dt.buildTree(X, y, idx, 0)
	dt.Fitted = true
	return nil
}

func (dt *DecisionTree) buildTree(X [][]float64, y []float64, idx []int, depth int) *TreeNode {
	node := &TreeNode{Samples: len(idx)}
	node.Impurity = dt.impurity(y, idx)
	dt.setLeafValue(node, y, idx)

	if depth >= dt.MaxDepth ||
		len(idx) < dt.MinSamplesSplit ||
		node.Impurity <= 0 {
		node.IsLeaf = true
		return node
	}

	feature, threshold, decrease, ok := dt.findBestSplit(X, y, idx)
	if !ok || decrease <= dt.MinImpurityDecrease {
		node.IsLeaf = true
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.ImpurityDecrease = decrease
	node.Distribution = nil
	dt.Importances[feature] += decrease * float64(len(idx))

	node.Left = dt.buildTree(X, y, left, depth+1)
	node.Right = dt.buildTree(X, y, right, depth+1)

	return node
}

// findBestSplit sweeps every feature in sorted order and returns the
// midpoint threshold with the largest weighted impurity decrease.
func (dt *DecisionTree) findBestSplit(X [][]float64, y []float64, idx []int) (int, float64, float64, bool) {
	n := len(idx)
	parent := dt.impurity(y, idx)
	bestFeature, bestThreshold, bestDecrease := 0, 0.0, 0.0
	found := false

	sorted := make([]int, n)
	for feature := 0; feature < dt.NFeatures; feature++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool {
			return X[sorted[a]][feature] < X[sorted[b]][feature]
		})

		sweep := dt.newSweep(y, sorted)
		for k := 1; k < n; k++ {
			sweep.move(y[sorted[k-1]])
			lo, hi := X[sorted[k-1]][feature], X[sorted[k]][feature]
			if lo == hi {
				continue
			}
			weighted := (float64(k)*sweep.leftImpurity() + float64(n-k)*sweep.rightImpurity()) / float64(n)
			decrease := parent - weighted
			if decrease > bestDecrease {
				bestFeature = feature
				bestThreshold = lo + (hi-lo)/2
				bestDecrease = decrease
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, bestDecrease, found
}

// sweep tracks left/right statistics while samples move from right to left.
type sweep struct {
	classification bool
	classIndex     map[float64]int
	leftCounts     []float64
	rightCounts    []float64
	nLeft, nRight  float64
	sumL, sumR     float64
	sqL, sqR       float64
}

func (dt *DecisionTree) newSweep(y []float64, idx []int) *sweep {
	s := &sweep{classification: dt.Mode == Classification, classIndex: dt.classIndex}
	if s.classification {
		s.leftCounts = make([]float64, len(dt.Classes))
		s.rightCounts = make([]float64, len(dt.Classes))
	}
	for _, i := range idx {
		s.nRight++
		if s.classification {
			s.rightCounts[s.classIndex[y[i]]]++
		} else {
			s.sumR += y[i]
			s.sqR += y[i] * y[i]
		}
	}
	return s
}

func (s *sweep) move(v float64) {
	s.nLeft++
	s.nRight--
	if s.classification {
		c := s.classIndex[v]
		s.leftCounts[c]++
		s.rightCounts[c]--
		return
	}
	s.sumL += v
	s.sumR -= v
	s.sqL += v * v
	s.sqR -= v * v
}

func (s *sweep) leftImpurity() float64 {
	if s.classification {
		return gini(s.leftCounts, s.nLeft)
	}
	return variance(s.sumL, s.sqL, s.nLeft)
}

func (s *sweep) rightImpurity() float64 {
	if s.classification {
		return gini(s.rightCounts, s.nRight)
	}
	return variance(s.sumR, s.sqR, s.nRight)
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / n
		impurity -= p * p
	}
	return impurity
}

func variance(sum, sq, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	return math.Max(sq/n-mean*mean, 0)
}

func (dt *DecisionTree) impurity(y []float64, idx []int) float64 {
	if dt.Mode == Classification {
		counts := make([]float64, len(dt.Classes))
		for _, i := range idx {
			counts[dt.classIndex[y[i]]]++
		}
		return gini(counts, float64(len(idx)))
	}
	var sum, sq float64
	for _, i := range idx {
		sum += y[i]
		sq += y[i] * y[i]
	}
	return variance(sum, sq, float64(len(idx)))
}

// setLeafValue stores the majority class (smallest on ties) or the mean.
func (dt *DecisionTree) setLeafValue(node *TreeNode, y []float64, idx []int) {
	if len(idx) == 0 {
		return
	}
	if dt.Mode == Regression {
		sum := 0.0
		for _, i := range idx {
			sum += y[i]
		}
		node.Value = sum / float64(len(idx))
		return
	}
	counts := make([]float64, len(dt.Classes))
	for _, i := range idx {
		counts[dt.classIndex[y[i]]]++
	}
	node.Value = dt.Classes[argmax(counts)]
	node.Distribution = make([]float64, len(counts))
	for c, n := range counts {
		node.Distribution[c] = n / float64(len(idx))
	}
}

func (dt *DecisionTree) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict("DecisionTree.Predict", dt.Fitted, X, dt.NFeatures); err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))
	for i, sample := range X {
		predictions[i] = dt.leaf(sample).Value
	}
	return predictions, nil
}

func (dt *DecisionTree) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkPredict("DecisionTree.PredictProba", dt.Fitted, X, dt.NFeatures); err != nil {
		return nil, err
	}
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = append([]float64(nil), dt.leaf(sample).Distribution...)
	}
	return proba, nil
}

func (dt *DecisionTree) leaf(sample []float64) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if sample[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// FeatureImportances returns the normalized total impurity decrease per feature.
func (dt *DecisionTree) FeatureImportances() []float64 {
	return normalizeSum(dt.Importances)
}

func (dt *DecisionTree) Reset() {
	dt.Root = nil
	dt.Classes = nil
	dt.Importances = nil
	dt.Fitted = false
}
