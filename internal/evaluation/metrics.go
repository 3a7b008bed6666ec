package evaluation

import (
	"fmt"
	"math"
	"sort"

	perrors "roadsafety/internal/errors"
	"roadsafety/internal/models"
)

// Report is the fixed-shape outcome of one evaluation. Exactly one of
// Classification and Regression is set, according to Task.
type Report struct {
	Task           models.Task            `json:"task"`
	NumSamples     int                    `json:"num_samples"`
	Classification *ClassificationMetrics `json:"classification,omitempty"`
	Regression     *RegressionMetrics     `json:"regression,omitempty"`
}

type ClassificationMetrics struct {
	Accuracy          float64         `json:"accuracy"`
	BalancedAccuracy  float64         `json:"balanced_accuracy"`
	MacroPrecision    float64         `json:"macro_precision"`
	MacroRecall       float64         `json:"macro_recall"`
	MacroF1           float64         `json:"macro_f1"`
	WeightedPrecision float64         `json:"weighted_precision"`
	WeightedRecall    float64         `json:"weighted_recall"`
	WeightedF1        float64         `json:"weighted_f1"`
	Classes           []float64       `json:"classes"`
	PerClassMetrics   []ClassMetrics  `json:"per_class_metrics"`
	ConfusionMatrix   [][]int         `json:"confusion_matrix"`
	Binary            *BinaryOutcomes `json:"binary,omitempty"`
	NumSamples        int             `json:"num_samples"`
	NumClasses        int             `json:"num_classes"`
}

type ClassMetrics struct {
	Class       float64 `json:"class"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1Score     float64 `json:"f1_score"`
	Specificity float64 `json:"specificity"`
	Support     int     `json:"support"`
}

// BinaryOutcomes are the cells of a 2x2 confusion matrix; the larger class
// code is the positive one.
type BinaryOutcomes struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

type RegressionMetrics struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Evaluate compares predictions with the truth. It never fits anything.
// For classification, classes lists the labels the model was trained on, so
// that a test partition holding fewer of them keeps the full matrix shape;
// labels seen only in yTrue or yPred are added to it.
func Evaluate(task models.Task, yTrue, yPred, classes []float64) (*Report, error) {
	if len(yTrue) != len(yPred) {
		return nil, perrors.NewInvalidInputError("Evaluate",
			fmt.Sprintf("truth and predictions have different lengths: %d vs %d", len(yTrue), len(yPred)))
	}
	if len(yTrue) == 0 {
		return nil, perrors.NewInvalidInputError("Evaluate", "nothing to evaluate")
	}

	report := &Report{Task: task, NumSamples: len(yTrue)}
	switch task {
	case models.Classification:
		report.Classification = CalculateMetrics(yTrue, yPred, ClassesOf(classes, yTrue, yPred))
	case models.Regression:
		report.Regression = CalculateRegressionMetrics(yTrue, yPred)
	default:
		return nil, perrors.NewInvalidInputError("Evaluate", fmt.Sprintf("unknown task %q", task))
	}
	return report, nil
}

// ClassesOf returns the sorted union of labels seen in the given slices.
func ClassesOf(ys ...[]float64) []float64 {
	seen := make(map[float64]bool)
	for _, y := range ys {
		for _, v := range y {
			seen[v] = true
		}
	}
	classes := make([]float64, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Float64s(classes)
	return classes
}

func CalculateMetrics(yTrue, yPred []float64, classes []float64) *ClassificationMetrics {
	numSamples := len(yTrue)
	numClasses := len(classes)

	confusionMatrix := buildConfusionMatrix(yTrue, yPred, classes)

	classSupport := make(map[float64]int)
	for _, class := range yTrue {
		classSupport[class]++
	}

	perClassMetrics := make([]ClassMetrics, numClasses)
	var macroPrec, macroRec, macroF1 float64
	var weightedPrec, weightedRec, weightedF1 float64
	totalSupport := 0

	for i, class := range classes {
		tp := confusionMatrix[i][i]
		fp := 0
		fn := 0
		tn := 0

		for j := range classes {
			if j != i {
				fp += confusionMatrix[j][i]
				fn += confusionMatrix[i][j]
			}
		}

		for j := range classes {
			for k := range classes {
				if j != i && k != i {
					tn += confusionMatrix[j][k]
				}
			}
		}

		precision := safeDivide(float64(tp), float64(tp+fp))
		recall := safeDivide(float64(tp), float64(tp+fn))
		f1 := safeDivide(2*precision*recall, precision+recall)
		specificity := safeDivide(float64(tn), float64(tn+fp))

		support := classSupport[class]
		perClassMetrics[i] = ClassMetrics{
			Class:       class,
			Precision:   precision,
			Recall:      recall,
			F1Score:     f1,
			Specificity: specificity,
			Support:     support,
		}

		macroPrec += precision
		macroRec += recall
		macroF1 += f1

		weightedPrec += precision * float64(support)
		weightedRec += recall * float64(support)
		weightedF1 += f1 * float64(support)
		totalSupport += support
	}

	correct := 0
	for i, pred := range yPred {
		if pred == yTrue[i] {
			correct++
		}
	}

	m := &ClassificationMetrics{
		Accuracy:          safeDivide(float64(correct), float64(numSamples)),
		BalancedAccuracy:  safeDivide(macroRec, float64(numClasses)),
		MacroPrecision:    safeDivide(macroPrec, float64(numClasses)),
		MacroRecall:       safeDivide(macroRec, float64(numClasses)),
		MacroF1:           safeDivide(macroF1, float64(numClasses)),
		WeightedPrecision: safeDivide(weightedPrec, float64(totalSupport)),
		WeightedRecall:    safeDivide(weightedRec, float64(totalSupport)),
		WeightedF1:        safeDivide(weightedF1, float64(totalSupport)),
		Classes:           classes,
		PerClassMetrics:   perClassMetrics,
		ConfusionMatrix:   confusionMatrix,
		NumSamples:        numSamples,
		NumClasses:        numClasses,
	}

	if numClasses == 2 {
		m.Binary = &BinaryOutcomes{
			TN: confusionMatrix[0][0],
			FP: confusionMatrix[0][1],
			FN: confusionMatrix[1][0],
			TP: confusionMatrix[1][1],
		}
	}
	return m
}

func buildConfusionMatrix(yTrue, yPred []float64, classes []float64) [][]int {
	numClasses := len(classes)
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	classToIdx := make(map[float64]int)
	for i, class := range classes {
		classToIdx[class] = i
	}

	for i := range yTrue {
		trueIdx, trueOk := classToIdx[yTrue[i]]
		predIdx, predOk := classToIdx[yPred[i]]
		if trueOk && predOk {
			matrix[trueIdx][predIdx]++
		}
	}

	return matrix
}

func CalculateRegressionMetrics(yTrue, yPred []float64) *RegressionMetrics {
	n := float64(len(yTrue))
	var sse, sae, mean float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sse += diff * diff
		sae += math.Abs(diff)
		mean += yTrue[i]
	}
	mean /= n

	var sst float64
	for _, v := range yTrue {
		sst += (v - mean) * (v - mean)
	}

	r2 := 0.0
	switch {
	case sst > 0:
		r2 = 1 - sse/sst
	case sse == 0:
		r2 = 1
	}

	return &RegressionMetrics{
		MSE:  sse / n,
		RMSE: math.Sqrt(sse / n),
		MAE:  sae / n,
		R2:   r2,
	}
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}

func (m *ClassificationMetrics) FormatMetrics() string {
	result := fmt.Sprintf("Accuracy: %.4f\n", m.Accuracy)
	result += fmt.Sprintf("Balanced Accuracy: %.4f\n", m.BalancedAccuracy)
	result += fmt.Sprintf("Macro Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.MacroPrecision, m.MacroRecall, m.MacroF1)
	result += fmt.Sprintf("Weighted Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.WeightedPrecision, m.WeightedRecall, m.WeightedF1)
	return result
}

func (m *RegressionMetrics) FormatMetrics() string {
	return fmt.Sprintf("MSE: %.4f\nRMSE: %.4f\nMAE: %.4f\nR2: %.4f\n", m.MSE, m.RMSE, m.MAE, m.R2)
}

// Score is the single figure used to rank models: accuracy or R2.
func (r *Report) Score() float64 {
	if r.Classification != nil {
		return r.Classification.Accuracy
	}
	if r.Regression != nil {
		return r.Regression.R2
	}
	return 0
}
