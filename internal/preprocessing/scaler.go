package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	perrors "roadsafety/internal/errors"
)

type Scaler struct {
	ScaleType      string
	StrictVariance bool
	FeatureNames   []string
	IsFitted       bool
	FeatureMin     []float64
	FeatureMax     []float64
	FeatureMean    []float64
	FeatureStd     []float64

	warnings []error
}

func NewScaler(scaleType string) *Scaler {
	return &Scaler{
		ScaleType: scaleType,
		IsFitted:  false,
	}
}

func (s *Scaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return perrors.NewInvalidInputError("Scale", "empty dataset")
	}

	nFeatures := len(X[0])
	s.FeatureMin = make([]float64, nFeatures)
	s.FeatureMax = make([]float64, nFeatures)
	s.FeatureMean = make([]float64, nFeatures)
	s.FeatureStd = make([]float64, nFeatures)
	s.warnings = nil

	switch s.ScaleType {
	case "minmax", "normalized":
		s.fitMinMax(X)
	case "standard", "standardized", "":
		if err := s.fitStandard(X); err != nil {
			return err
		}
	case "raw", "none":
	default:
		return perrors.NewInvalidInputError("Scale", fmt.Sprintf("unknown scale type: %s", s.ScaleType))
	}

	s.IsFitted = true
	return nil
}

// Warnings lists the ZeroVarianceErrors recorded by the last Fit.
func (s *Scaler) Warnings() []error {
	return s.warnings
}

func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.IsFitted {
		return nil, perrors.NewInvalidInputError("Scale", "scaler must be fitted before transform")
	}

	result := make([][]float64, len(X))
	for i := range X {
		result[i] = make([]float64, len(X[i]))
		for j := range X[i] {
			switch s.ScaleType {
			case "minmax", "normalized":
				result[i][j] = s.transformMinMax(X[i][j], j)
			case "standard", "standardized", "":
				result[i][j] = s.transformStandard(X[i][j], j)
			default:
				result[i][j] = X[i][j]
			}
		}
	}

	return result, nil
}

func (s *Scaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *Scaler) fitMinMax(X [][]float64) {
	nFeatures := len(X[0])

	for j := 0; j < nFeatures; j++ {
		s.FeatureMin[j] = X[0][j]
		s.FeatureMax[j] = X[0][j]

		for i := 1; i < len(X); i++ {
			s.FeatureMin[j] = math.Min(s.FeatureMin[j], X[i][j])
			s.FeatureMax[j] = math.Max(s.FeatureMax[j], X[i][j])
		}
	}
}

// fitStandard uses the population standard deviation. A constant column is
// only centered.
func (s *Scaler) fitStandard(X [][]float64) error {
	nFeatures := len(X[0])
	column := make([]float64, len(X))

	for j := 0; j < nFeatures; j++ {
		for i := range X {
			column[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		s.FeatureMean[j] = mean
		s.FeatureStd[j] = std

		if std == 0 || math.IsNaN(std) {
			zv := perrors.NewZeroVarianceError(featureName(s.FeatureNames, j))
			if s.StrictVariance {
				return zv
			}
			s.warnings = append(s.warnings, zv)
			s.FeatureStd[j] = 1
		}
	}
	return nil
}

func (s *Scaler) transformMinMax(value float64, featureIndex int) float64 {
	range_ := s.FeatureMax[featureIndex] - s.FeatureMin[featureIndex]
	if range_ == 0 {
		return 0
	}
	return (value - s.FeatureMin[featureIndex]) / range_
}

func (s *Scaler) transformStandard(value float64, featureIndex int) float64 {
	return (value - s.FeatureMean[featureIndex]) / s.FeatureStd[featureIndex]
}
