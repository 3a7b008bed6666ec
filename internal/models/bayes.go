package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// NaiveBayes is a Gaussian naive Bayes classifier. VarSmoothing is scaled by
// the largest feature variance and added to every class variance.
type NaiveBayes struct {
	BaseModel
	ClassLogPriors []float64
	FeatureMeans   [][]float64
	FeatureVars    [][]float64
	VarSmoothing   float64
	NFeatures      int
}

func NewNaiveBayes(varSmoothing float64) *NaiveBayes {
	return &NaiveBayes{
		VarSmoothing: varSmoothing,
		BaseModel: BaseModel{
			Type: "NaiveBayes",
			Mode: Classification,
			Params: map[string]any{
				"var_smoothing": varSmoothing,
			},
		},
	}
}

func (nb *NaiveBayes) Fit(X [][]float64, y []float64) error {
	if err := checkFit("NaiveBayes.Fit", X, y); err != nil {
		return err
	}
	nb.Classes = ExtractClasses(y)
	nb.NFeatures = len(X[0])

	column := make([]float64, len(X))
	maxVar := 0.0
	for j := 0; j < nb.NFeatures; j++ {
		for i := range X {
			column[i] = X[i][j]
		}
		_, v := stat.PopMeanVariance(column, nil)
		maxVar = math.Max(maxVar, v)
	}
	epsilon := nb.VarSmoothing * maxVar
	if epsilon == 0 {
		epsilon = nb.VarSmoothing
	}

	nb.ClassLogPriors = make([]float64, len(nb.Classes))
	nb.FeatureMeans = make([][]float64, len(nb.Classes))
	nb.FeatureVars = make([][]float64, len(nb.Classes))

	for k, class := range nb.Classes {
		var rows [][]float64
		for i, label := range y {
			if label == class {
				rows = append(rows, X[i])
			}
		}
		if len(rows) == 0 {
			return fmt.Errorf("class %v has no samples", class)
		}

		nb.ClassLogPriors[k] = math.Log(float64(len(rows)) / float64(len(y)))
		nb.FeatureMeans[k] = make([]float64, nb.NFeatures)
		nb.FeatureVars[k] = make([]float64, nb.NFeatures)

		values := make([]float64, len(rows))
		for j := 0; j < nb.NFeatures; j++ {
			for i, row := range rows {
				values[i] = row[j]
			}
			mean, v := stat.PopMeanVariance(values, nil)
			nb.FeatureMeans[k][j] = mean
			nb.FeatureVars[k][j] = v + epsilon
		}
	}

	nb.Fitted = true
	return nil
}

func logGaussianPDF(x, mean, variance float64) float64 {
	logTwoPiVar := math.Log(2 * math.Pi * variance)
	diff := x - mean
	exponent := -(diff * diff) / (2 * variance)

	return -0.5*logTwoPiVar + exponent
}

func (nb *NaiveBayes) jointLogLikelihood(sample []float64) []float64 {
	logProbs := make([]float64, len(nb.Classes))
	for k := range nb.Classes {
		logProb := nb.ClassLogPriors[k]
		for j, feature := range sample {
			logProb += logGaussianPDF(feature, nb.FeatureMeans[k][j], nb.FeatureVars[k][j])
		}
		logProbs[k] = logProb
	}
	return logProbs
}

func (nb *NaiveBayes) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict("NaiveBayes.Predict", nb.Fitted, X, nb.NFeatures); err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))
	for i, sample := range X {
		predictions[i] = nb.Classes[argmax(nb.jointLogLikelihood(sample))]
	}
	return predictions, nil
}

func (nb *NaiveBayes) PredictProba(X [][]float64) ([][]float64, error) {
	if err := checkPredict("NaiveBayes.PredictProba", nb.Fitted, X, nb.NFeatures); err != nil {
		return nil, err
	}
	proba := make([][]float64, len(X))

	for i, sample := range X {
		logProbs := nb.jointLogLikelihood(sample)

		maxLogProb := logProbs[argmax(logProbs)]
		sumExp := 0.0
		for _, lp := range logProbs {
			sumExp += math.Exp(lp - maxLogProb)
		}

		proba[i] = make([]float64, len(nb.Classes))
		for j, lp := range logProbs {
			proba[i][j] = math.Exp(lp-maxLogProb) / sumExp
		}
	}

	return proba, nil
}

func (nb *NaiveBayes) Reset() {
	nb.ClassLogPriors = nil
	nb.FeatureMeans = nil
	nb.FeatureVars = nil
	nb.Classes = nil
	nb.Fitted = false
}
