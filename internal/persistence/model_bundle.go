// Package persistence saves a fitted backend together with the transform and
// label map it was trained with, so predictions can be made on new files.
package persistence

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"roadsafety/internal/data"
	"roadsafety/internal/models"
	"roadsafety/internal/preprocessing"
)

func init() {
	gob.Register(&models.KNN{})
	gob.Register(&models.DecisionTree{})
	gob.Register(&models.RandomForest{})
	gob.Register(&models.NaiveBayes{})
	gob.Register(&models.LogisticRegression{})
	gob.Register(&models.GradientBoosting{})
	gob.Register(&models.LinearRegression{})
}

type ModelBundle struct {
	Model     models.Model
	Transform *preprocessing.FeatureTransform
	Labels    *preprocessing.LabelMap
	Metadata  BundleMetadata
	CreatedAt time.Time
}

type BundleMetadata struct {
	ModelName    string
	Algorithm    string
	Task         models.Task
	Dataset      string
	Target       string
	Score        float64
	TrainingTime time.Duration
	Features     []string
	Classes      []string
	Parameters   map[string]any
	Fingerprint  uint64
}

func NewModelBundle(model models.Model, transform *preprocessing.FeatureTransform, labels *preprocessing.LabelMap) *ModelBundle {
	mb := &ModelBundle{
		Model:     model,
		Transform: transform,
		Labels:    labels,
		CreatedAt: time.Now(),
		Metadata: BundleMetadata{
			ModelName:  model.GetName(),
			Algorithm:  model.GetType(),
			Task:       model.Task(),
			Parameters: model.GetParams(),
		},
	}
	if transform != nil {
		mb.Metadata.Features = transform.Features
	}
	if labels != nil {
		mb.Metadata.Classes = labels.Classes()
	}
	return mb
}

func (mb *ModelBundle) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(mb); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	return nil
}

func LoadModelBundle(filename string) (*ModelBundle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var bundle ModelBundle
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if bundle.Model == nil || bundle.Transform == nil {
		return nil, fmt.Errorf("bundle %s is incomplete", filename)
	}

	return &bundle, nil
}

func (mb *ModelBundle) SaveMetadata(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	md := mb.Metadata
	fmt.Fprintf(file, "Model: %s\n", md.ModelName)
	fmt.Fprintf(file, "Algorithm: %s\n", md.Algorithm)
	fmt.Fprintf(file, "Task: %s\n", md.Task)
	fmt.Fprintf(file, "Dataset: %s\n", md.Dataset)
	fmt.Fprintf(file, "Target: %s\n", md.Target)
	fmt.Fprintf(file, "Created: %s\n", mb.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(file, "Score: %.4f\n", md.Score)
	fmt.Fprintf(file, "Training Time: %v\n", md.TrainingTime)
	fmt.Fprintf(file, "Features: %s\n", strings.Join(md.Features, ", "))
	if len(md.Classes) > 0 {
		fmt.Fprintf(file, "Classes: %s\n", strings.Join(md.Classes, ", "))
	}
	fmt.Fprintf(file, "Partition: %016x\n", md.Fingerprint)

	return nil
}

// FeatureMatrix pulls the bundle's feature columns out of a table, with NaN
// for missing cells.
func (mb *ModelBundle) FeatureMatrix(t *data.Table) ([][]float64, error) {
	features := mb.Transform.Features
	cols := make([]*data.Column, len(features))
	for j, name := range features {
		col, err := t.Lookup("Predict", name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}

	X := make([][]float64, t.NumRows())
	for i := range X {
		row := make([]float64, len(cols))
		for j, col := range cols {
			v, ok := col.Float(i)
			if !ok {
				v = math.NaN()
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

// Predict transforms raw feature rows with the frozen statistics and runs
// the model over them in batches.
func (mb *ModelBundle) Predict(X [][]float64, batchSize int) ([]float64, error) {
	predictions := make([]float64, len(X))
	bp := data.NewBatchProcessor(batchSize)
	err := bp.ProcessBatches(X, func(start int, batch [][]float64) error {
		transformed, err := mb.Transform.Apply(batch)
		if err != nil {
			return err
		}
		pred, err := mb.Model.Predict(transformed)
		if err != nil {
			return err
		}
		copy(predictions[start:], pred)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

// Decode turns predicted codes into source labels. Regression bundles and
// bundles without a label map format the numbers.
func (mb *ModelBundle) Decode(predictions []float64) ([]string, error) {
	if mb.Labels != nil && mb.Model.Task() == models.Classification {
		return mb.Labels.Inverse(predictions)
	}
	out := make([]string, len(predictions))
	for i, p := range predictions {
		out[i] = fmt.Sprintf("%g", p)
	}
	return out, nil
}
