package data

import (
	"fmt"
	"math"

	perrors "roadsafety/internal/errors"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

// ValidateDataset checks shape only; NaN is allowed before imputation.
func (dv *DataValidator) ValidateDataset(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return perrors.NewInvalidInputError("Validate", "dataset is empty")
	}

	if len(X) != len(y) {
		return perrors.NewInvalidInputError("Validate",
			fmt.Sprintf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y)))
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return perrors.NewInvalidInputError("Validate", "features cannot be empty")
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return perrors.NewInvalidInputError("Validate",
				fmt.Sprintf("inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample)))
		}
	}

	return nil
}

// ValidateFinite rejects NaN and infinite values, as left by a broken transform.
func (dv *DataValidator) ValidateFinite(X [][]float64) error {
	for i, sample := range X {
		for j, value := range sample {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return perrors.NewInvalidInputError("Validate",
					fmt.Sprintf("non-finite value at sample %d, feature %d", i, j))
			}
		}
	}
	return nil
}

func (dv *DataValidator) ValidateLabels(y []float64) error {
	if len(y) == 0 {
		return perrors.NewInvalidInputError("Validate", "labels are empty")
	}

	classCount := make(map[float64]int)
	for _, label := range y {
		classCount[label]++
	}

	if len(classCount) < 2 {
		return perrors.NewInvalidInputError("Validate",
			fmt.Sprintf("dataset must have at least 2 classes, found %d", len(classCount)))
	}

	return nil
}

func (dv *DataValidator) ValidateTrainTestSplit(XTrain, XTest [][]float64, yTrain, yTest []float64) error {
	if err := dv.ValidateDataset(XTrain, yTrain); err != nil {
		return fmt.Errorf("training set validation failed: %w", err)
	}

	if err := dv.ValidateDataset(XTest, yTest); err != nil {
		return fmt.Errorf("test set validation failed: %w", err)
	}

	if len(XTrain[0]) != len(XTest[0]) {
		return perrors.NewInvalidInputError("Validate",
			fmt.Sprintf("train and test sets have different feature counts: %d vs %d", len(XTrain[0]), len(XTest[0])))
	}

	return nil
}
