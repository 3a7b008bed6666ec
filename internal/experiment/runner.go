// Package experiment trains several backends on the same prepared
// partitions and tabulates the results side by side.
package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"roadsafety/internal/jobs"
	"roadsafety/internal/models"
	"roadsafety/internal/pipeline"
)

type Runner struct {
	Jobs       *jobs.Manager
	MaxWorkers int
	Logger     *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Jobs:       jobs.NewManager(),
		MaxWorkers: 4,
		Logger:     logger,
	}
}

// Comparison holds one result per backend, in configuration order.
type Comparison struct {
	Features []string
	Results  []*pipeline.Result
	JobIDs   []string
}

// Compare trains every configured backend concurrently. The prepared data is
// shared read-only; the first failure cancels the remaining backends.
func (r *Runner) Compare(ctx context.Context, prep *pipeline.Prepared, configs []models.ModelConfig) (*Comparison, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no models to compare")
	}

	cmp := &Comparison{
		Features: prep.Features(),
		Results:  make([]*pipeline.Result, len(configs)),
		JobIDs:   make([]string, len(configs)),
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.MaxWorkers > 0 {
		g.SetLimit(r.MaxWorkers)
	}
	// An interrupt or the first failure marks the jobs still training as
	// cancelled.
	stop := context.AfterFunc(ctx, r.CancelRunning)
	defer stop()

	for i, mc := range configs {
		g.Go(func() error {
			job, err := r.Jobs.Run(ctx, "train", mc.Label(), func(ctx context.Context, job *jobs.Job) (any, error) {
				job.AddLog(fmt.Sprintf("training %s", mc.Algorithm))
				return pipeline.Train(ctx, prep, mc)
			})
			cmp.JobIDs[i] = job.ID
			if err != nil {
				return fmt.Errorf("model %s: %w", mc.Label(), err)
			}
			cmp.Results[i] = job.Result.(*pipeline.Result)
			r.Logger.Info("backend finished",
				slog.String("model", mc.Label()),
				slog.String("job", job.ID),
				slog.Duration("elapsed", job.Duration()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cmp, nil
}

// CancelRunning cancels every job that is still training.
func (r *Runner) CancelRunning() {
	for _, job := range r.Jobs.ListJobs() {
		if job.GetStatus() != jobs.JobRunning {
			continue
		}
		if err := r.Jobs.CancelJob(job.ID); err == nil {
			r.Logger.Warn("backend cancelled", slog.String("model", job.Description), slog.String("job", job.ID))
		}
	}
}

// Best returns the result with the highest score.
func (c *Comparison) Best() *pipeline.Result {
	var best *pipeline.Result
	for _, res := range c.Results {
		if best == nil || res.Report.Score() > best.Report.Score() {
			best = res
		}
	}
	return best
}

// ImportanceTable returns one row per feature with the normalized
// importance of every model, in the order of Results.
func (c *Comparison) ImportanceTable() map[string][]float64 {
	table := make(map[string][]float64, len(c.Features))
	for _, f := range c.Features {
		table[f] = make([]float64, len(c.Results))
	}
	for m, res := range c.Results {
		for _, fi := range res.Ranking {
			table[fi.Feature][m] = fi.Importance
		}
	}
	return table
}

// Row is the flat record written for each backend.
type Row struct {
	Model          string
	Algorithm      string
	Task           string
	Parameters     string
	Score          float64
	Accuracy       float64
	Precision      float64
	Recall         float64
	F1Score        float64
	MSE            float64
	RMSE           float64
	MAE            float64
	R2             float64
	CVMean         float64
	CVStd          float64
	TrainingTimeMs int64
	Fingerprint    string
}

func NewRow(res *pipeline.Result) Row {
	row := Row{
		Model:          res.Name,
		Algorithm:      res.ModelConfig.Algorithm,
		Task:           string(res.Report.Task),
		Parameters:     fmt.Sprintf("%v", res.Model.GetParams()),
		Score:          res.Report.Score(),
		TrainingTimeMs: res.TrainingTime.Milliseconds(),
		Fingerprint:    fmt.Sprintf("%016x", res.Fingerprint),
	}
	if m := res.Report.Classification; m != nil {
		row.Accuracy = m.Accuracy
		row.Precision = m.MacroPrecision
		row.Recall = m.MacroRecall
		row.F1Score = m.MacroF1
	}
	if m := res.Report.Regression; m != nil {
		row.MSE = m.MSE
		row.RMSE = m.RMSE
		row.MAE = m.MAE
		row.R2 = m.R2
	}
	if res.CV != nil {
		row.CVMean = res.CV.Mean
		row.CVStd = res.CV.Std
	}
	return row
}

func (c *Comparison) Rows() []Row {
	rows := make([]Row, len(c.Results))
	for i, res := range c.Results {
		rows[i] = NewRow(res)
	}
	return rows
}

var csvHeader = []string{
	"Model", "Algorithm", "Task", "Parameters", "Score",
	"Accuracy", "Precision", "Recall", "F1Score",
	"MSE", "RMSE", "MAE", "R2",
	"CVMean", "CVStd", "TrainingTimeMs", "Fingerprint",
}

func ExportCSV(rows []Row, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, row := range rows {
		record := []string{
			row.Model,
			row.Algorithm,
			row.Task,
			row.Parameters,
			f(row.Score),
			f(row.Accuracy),
			f(row.Precision),
			f(row.Recall),
			f(row.F1Score),
			f(row.MSE),
			f(row.RMSE),
			f(row.MAE),
			f(row.R2),
			f(row.CVMean),
			f(row.CVStd),
			strconv.FormatInt(row.TrainingTimeMs, 10),
			row.Fingerprint,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
