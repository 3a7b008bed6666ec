package models

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

type KNN struct {
	BaseModel
	K        int
	Distance string
	XTrain   [][]float64
	YTrain   []float64
}

func NewKNN(k int, distance string) *KNN {
	return newKNN(Classification, k, distance)
}

func NewKNNRegressor(k int, distance string) *KNN {
	return newKNN(Regression, k, distance)
}

func newKNN(task Task, k int, distance string) *KNN {
	if k <= 0 {
		k = 5
	}

	if distance != "euclidean" && distance != "manhattan" {
		distance = "euclidean"
	}

	return &KNN{
		K:        k,
		Distance: distance,
		BaseModel: BaseModel{
			Type: "KNN",
			Mode: task,
			Params: map[string]any{
				"k":        k,
				"distance": distance,
			},
		},
	}
}

func (knn *KNN) Fit(X [][]float64, y []float64) error {
	if err := checkFit("KNN.Fit", X, y); err != nil {
		return err
	}
	knn.XTrain = make([][]float64, len(X))
	for i := range X {
		knn.XTrain[i] = append([]float64(nil), X[i]...)
	}
	knn.YTrain = append([]float64(nil), y...)

	if knn.Mode == Classification {
		knn.Classes = ExtractClasses(y)
	}
	knn.Fitted = true
	return nil
}

func (knn *KNN) nFeatures() int {
	if len(knn.XTrain) == 0 {
		return 0
	}
	return len(knn.XTrain[0])
}

func (knn *KNN) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict("KNN.Predict", knn.Fitted, X, knn.nFeatures()); err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))

	for i, sample := range X {
		neighbors := knn.findNeighbors(sample)
		if knn.Mode == Regression {
			sum := 0.0
			for _, idx := range neighbors {
				sum += knn.YTrain[idx]
			}
			predictions[i] = sum / float64(len(neighbors))
			continue
		}
		proba := knn.calculateProbabilities(neighbors)
		predictions[i] = knn.Classes[argmax(proba)]
	}

	return predictions, nil
}

func (knn *KNN) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkPredict("KNN.PredictProba", knn.Fitted, X, knn.nFeatures()); err != nil {
		return nil, err
	}
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = knn.calculateProbabilities(knn.findNeighbors(sample))
	}
	return proba, nil
}

// findNeighbors returns the K closest training rows, ties broken by index.
func (knn *KNN) findNeighbors(sample []float64) []int {
	type neighbor struct {
		index    int
		distance float64
	}

	neighbors := make([]neighbor, len(knn.XTrain))
	for i, trainSample := range knn.XTrain {
		neighbors[i] = neighbor{index: i, distance: knn.calculateDistance(sample, trainSample)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})

	k := int(math.Min(float64(knn.K), float64(len(neighbors))))
	kNeighbors := make([]int, k)
	for i := 0; i < k; i++ {
		kNeighbors[i] = neighbors[i].index
	}

	return kNeighbors
}

func (knn *KNN) calculateDistance(a, b []float64) float64 {
	if knn.Distance == "manhattan" {
		return floats.Distance(a, b, 1)
	}
	return floats.Distance(a, b, 2)
}

func (knn *KNN) calculateProbabilities(neighbors []int) []float64 {
	classIdx := make(map[float64]int, len(knn.Classes))
	for i, c := range knn.Classes {
		classIdx[c] = i
	}

	proba := make([]float64, len(knn.Classes))
	for _, neighborIdx := range neighbors {
		proba[classIdx[knn.YTrain[neighborIdx]]]++
	}
	for i := range proba {
		proba[i] /= float64(len(neighbors))
	}

	return proba
}

func (knn *KNN) Reset() {
	knn.XTrain = nil
	knn.YTrain = nil
	knn.Classes = nil
	knn.Fitted = false
}
