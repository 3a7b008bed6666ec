// Package pipeline runs the modeling stages in their fixed order: load,
// sanitize, select, partition, transform, balance, then train and evaluate.
// Any stage error aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"roadsafety/internal/config"
	"roadsafety/internal/data"
	"roadsafety/internal/evaluation"
	"roadsafety/internal/models"
	"roadsafety/internal/preprocessing"
)

// Prepared holds the partitions every backend is trained on. It is read
// only once built, so several backends may share it.
type Prepared struct {
	Config    *config.Config
	Table     *data.Table
	Dataset   *preprocessing.Dataset
	Partition evaluation.Partition
	Transform *preprocessing.FeatureTransform

	XTrain [][]float64
	YTrain []float64
	XTest  [][]float64
	YTest  []float64

	// ClassCounts is the training distribution before balancing.
	ClassCounts map[float64]int
	Balanced    bool
	Warnings    []error

	logger *slog.Logger
}

func (p *Prepared) Task() models.Task { return p.Config.Task }

func (p *Prepared) Features() []string { return p.Dataset.Features }

// Classes is the sorted set of training labels, nil for regression.
func (p *Prepared) Classes() []float64 {
	if p.Task() != models.Classification {
		return nil
	}
	return evaluation.ClassesOf(p.YTrain)
}

// Logger is the logger the preparation ran with.
func (p *Prepared) Logger() *slog.Logger {
	if p.logger == nil {
		return slog.Default()
	}
	return p.logger
}

// Result is the outcome of training one backend.
type Result struct {
	Name         string
	Model        models.Model
	ModelConfig  models.ModelConfig
	Report       *evaluation.Report
	Predictions  []float64
	Importances  []float64
	Ranking      []evaluation.FeatureImportance
	ImportanceBy string
	CV           *evaluation.CVResult
	TrainingTime time.Duration
	Fingerprint  uint64
}

// LoadTable reads the configured dataset.
func LoadTable(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*data.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := cfg.LoadOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger
	return data.Load(cfg.Dataset.Path, opts)
}

// Prepare loads the configured dataset and runs every stage up to the
// model.
func Prepare(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Prepared, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := LoadTable(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return PrepareTable(ctx, cfg, table, logger)
}

// PrepareTable runs the stages after loading on an in-memory table.
func PrepareTable(ctx context.Context, cfg *config.Config, table *data.Table, logger *slog.Logger) (*Prepared, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prep := &Prepared{Config: cfg, logger: logger}

	for _, name := range cfg.Columns() {
		if _, err := table.Lookup("Resolve", name); err != nil {
			return nil, err
		}
	}

	stages := []struct {
		name string
		run  func() error
	}{
		{"sanitize", func() error { return prep.sanitize(table) }},
		{"select", prep.selectFeatures},
		{"partition", prep.partition},
		{"transform", prep.transform},
		{"balance", prep.balance},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stage.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", stage.name, err)
		}
	}
	return prep, nil
}

func (p *Prepared) sanitize(table *data.Table) error {
	clean, err := preprocessing.Sanitize(table, p.Config.Sanitize)
	if err != nil {
		return err
	}
	p.Table = clean
	p.logger.Info("table sanitized",
		slog.Int("rows_in", table.NumRows()),
		slog.Int("rows_out", clean.NumRows()),
		slog.Int("columns", clean.NumCols()))
	return nil
}

func (p *Prepared) selectFeatures() error {
	ds, err := preprocessing.Select(p.Table, p.Config.Selection)
	if err != nil {
		return err
	}

	validator := data.NewDataValidator()
	if err := validator.ValidateDataset(ds.X, ds.Y); err != nil {
		return err
	}
	if p.Task() == models.Classification {
		if err := validator.ValidateLabels(ds.Y); err != nil {
			return err
		}
	}

	p.Dataset = ds
	p.logger.Info("features selected",
		slog.Int("samples", ds.NumSamples()),
		slog.Int("features", ds.NumFeatures()),
		slog.String("target", ds.Target))
	return nil
}

func (p *Prepared) partition() error {
	split := p.Config.Split
	splitter := evaluation.NewTrainTestSplitter(split.TestSize, split.Seed, split.Shuffle)

	var (
		part evaluation.Partition
		err  error
	)
	if split.Stratify && p.Task() == models.Classification {
		part, err = splitter.StratifiedSplit(p.Dataset.Y)
	} else {
		part, err = splitter.Split(p.Dataset.NumSamples())
	}
	if err != nil {
		return err
	}
	p.Partition = part

	train := p.Dataset.Subset(part.Train)
	test := p.Dataset.Subset(part.Test)
	p.XTrain, p.YTrain = train.X, train.Y
	p.XTest, p.YTest = test.X, test.Y

	p.logger.Info("dataset partitioned",
		slog.Int("train", len(part.Train)),
		slog.Int("test", len(part.Test)),
		slog.String("fingerprint", fmt.Sprintf("%016x", part.Fingerprint())))
	return nil
}

func (p *Prepared) transform() error {
	ft := preprocessing.NewFeatureTransform(p.Config.Preprocess, p.Dataset.Features)
	XTrain, err := ft.FitApply(p.XTrain)
	if err != nil {
		return err
	}
	XTest, err := ft.Apply(p.XTest)
	if err != nil {
		return err
	}

	validator := data.NewDataValidator()
	if err := validator.ValidateFinite(XTrain); err != nil {
		return err
	}
	if err := validator.ValidateTrainTestSplit(XTrain, XTest, p.YTrain, p.YTest); err != nil {
		return err
	}

	for _, w := range ft.Warnings() {
		p.logger.Warn("scaling degenerated to centering", slog.Any("error", w))
	}
	p.Warnings = append(p.Warnings, ft.Warnings()...)
	p.Transform = ft
	p.XTrain, p.XTest = XTrain, XTest
	return nil
}

func (p *Prepared) balance() error {
	if p.Task() == models.Classification {
		p.ClassCounts = preprocessing.ClassCounts(p.YTrain)
	}
	b := p.Config.Balance
	if !b.Enabled || p.Task() != models.Classification {
		return nil
	}

	smote := preprocessing.NewSMOTE(b.K, b.Seed)
	smote.Ratio = b.Ratio
	X, y, err := smote.Resample(p.XTrain, p.YTrain)
	if err != nil {
		return err
	}
	p.logger.Info("training set balanced",
		slog.Int("before", len(p.YTrain)),
		slog.Int("after", len(y)))
	p.XTrain, p.YTrain = X, y
	p.Balanced = true
	return nil
}

// Train fits one backend on the prepared training partition and evaluates it
// on the test partition. The prepared data is not modified.
func Train(ctx context.Context, prep *Prepared, mc models.ModelConfig) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := prep.Logger().With(slog.String("model", mc.Label()))
	if mc.Task == "" {
		mc.Task = prep.Task()
	}

	model, err := models.CreateModel(mc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := model.Fit(prep.XTrain, prep.YTrain); err != nil {
		return nil, fmt.Errorf("fit %s: %w", mc.Label(), err)
	}
	elapsed := time.Since(start)
	logger.Info("model fitted", slog.Duration("elapsed", elapsed))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	predictions, err := model.Predict(prep.XTest)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", mc.Label(), err)
	}
	report, err := evaluation.Evaluate(prep.Task(), prep.YTest, predictions, prep.Classes())
	if err != nil {
		return nil, err
	}
	logger.Info("model evaluated", slog.Float64("score", report.Score()))

	res := &Result{
		Name:         mc.Label(),
		Model:        model,
		ModelConfig:  mc,
		Report:       report,
		Predictions:  predictions,
		TrainingTime: elapsed,
		Fingerprint:  prep.Partition.Fingerprint(),
	}
	if err := res.importances(prep); err != nil {
		return nil, err
	}

	if folds := prep.Config.CrossValidation.Folds; folds > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cv := evaluation.NewCrossValidator(folds, prep.Config.CrossValidation.Stratified)
		cv.RandomSeed = prep.Config.Split.Seed
		cv.Transform = prep.Config.Preprocess
		res.CV, err = cv.CrossValidate(prep.Dataset.X, prep.Dataset.Y, prep.Features(), mc)
		if err != nil {
			return nil, fmt.Errorf("cross-validate %s: %w", mc.Label(), err)
		}
		logger.Info("cross-validated", slog.Float64("mean", res.CV.Mean), slog.Float64("std", res.CV.Std))
	}
	return res, nil
}

// importances uses the backend's own importances when it has them and
// permutation importance on the test partition otherwise.
func (r *Result) importances(prep *Prepared) error {
	if imp, ok := r.Model.(models.Importancer); ok {
		r.Importances = imp.FeatureImportances()
		r.ImportanceBy = "model"
	} else {
		cfg := prep.Config.Importance
		values, err := evaluation.PermutationImportance(r.Model, prep.Task(), prep.XTest, prep.YTest,
			cfg.PermutationRepeats, cfg.Seed)
		if err != nil {
			return fmt.Errorf("permutation importance: %w", err)
		}
		r.Importances = values
		r.ImportanceBy = "permutation"
	}
	r.Ranking = evaluation.Rank(prep.Features(), evaluation.Normalize(r.Importances))
	return nil
}

// Run prepares the data and trains the first configured model.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Prepared, *Result, error) {
	prep, err := Prepare(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := Train(ctx, prep, cfg.Models[0])
	if err != nil {
		return nil, nil, err
	}
	return prep, res, nil
}
