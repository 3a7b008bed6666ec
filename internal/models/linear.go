package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression solves ordinary least squares through the normal
// equations. Alpha is a small ridge term that keeps X'X invertible when
// features are collinear.
type LinearRegression struct {
	BaseModel
	Alpha        float64
	Coefficients []float64
	Intercept    float64
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{
		Alpha: 1e-8,
		BaseModel: BaseModel{
			Type:   "LinearRegression",
			Mode:   Regression,
			Params: map[string]any{},
		},
	}
}

func (lin *LinearRegression) Fit(X [][]float64, y []float64) error {
	if err := checkFit("LinearRegression.Fit", X, y); err != nil {
		return err
	}
	n, p := len(X), len(X[0])

	// Column 0 carries the intercept.
	design := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 1; j <= p; j++ {
		gram.Set(j, j, gram.At(j, j)+lin.Alpha)
	}
	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &moment); err != nil {
		return fmt.Errorf("solving normal equations: %w", err)
	}

	lin.Intercept = beta.AtVec(0)
	lin.Coefficients = make([]float64, p)
	for j := range lin.Coefficients {
		lin.Coefficients[j] = beta.AtVec(j + 1)
	}
	lin.Fitted = true
	return nil
}

func (lin *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict("LinearRegression.Predict", lin.Fitted, X, len(lin.Coefficients)); err != nil {
		return nil, err
	}
	predictions := make([]float64, len(X))
	for i, row := range X {
		v := lin.Intercept
		for j, x := range row {
			v += lin.Coefficients[j] * x
		}
		predictions[i] = v
	}
	return predictions, nil
}

func (lin *LinearRegression) FeatureImportances() []float64 {
	out := make([]float64, len(lin.Coefficients))
	for j, c := range lin.Coefficients {
		out[j] = math.Abs(c)
	}
	return out
}

func (lin *LinearRegression) Reset() {
	lin.Coefficients = nil
	lin.Intercept = 0
	lin.Fitted = false
}
