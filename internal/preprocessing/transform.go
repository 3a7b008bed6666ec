package preprocessing

import (
	perrors "roadsafety/internal/errors"
)

type TransformConfig struct {
	Impute         string `yaml:"impute"`
	Scale          string `yaml:"scale"`
	StrictVariance bool   `yaml:"strict_variance"`
}

func DefaultTransformConfig() TransformConfig {
	return TransformConfig{Impute: "median", Scale: "standard"}
}

// FeatureTransform imputes then scales. Fit only ever sees the training
// partition; Apply reuses the frozen statistics.
type FeatureTransform struct {
	Features []string
	Imputer  *Imputer
	Scaler   *Scaler
}

func NewFeatureTransform(cfg TransformConfig, features []string) *FeatureTransform {
	scaler := NewScaler(cfg.Scale)
	scaler.StrictVariance = cfg.StrictVariance
	scaler.FeatureNames = features
	return &FeatureTransform{
		Features: features,
		Imputer:  NewImputer(cfg.Impute, features),
		Scaler:   scaler,
	}
}

func (ft *FeatureTransform) Fit(X [][]float64) error {
	if err := ft.Imputer.Fit(X); err != nil {
		return err
	}
	imputed, err := ft.Imputer.Transform(X)
	if err != nil {
		return err
	}
	return ft.Scaler.Fit(imputed)
}

func (ft *FeatureTransform) Apply(X [][]float64) ([][]float64, error) {
	if !ft.IsFitted() {
		return nil, perrors.NewInvalidInputError("Transform", "transform must be fitted before apply")
	}
	imputed, err := ft.Imputer.Transform(X)
	if err != nil {
		return nil, err
	}
	return ft.Scaler.Transform(imputed)
}

func (ft *FeatureTransform) FitApply(X [][]float64) ([][]float64, error) {
	if err := ft.Fit(X); err != nil {
		return nil, err
	}
	return ft.Apply(X)
}

func (ft *FeatureTransform) IsFitted() bool {
	return ft.Imputer.IsFitted && ft.Scaler.IsFitted
}

// Warnings returns non-fatal problems found while fitting.
func (ft *FeatureTransform) Warnings() []error {
	return ft.Scaler.Warnings()
}
