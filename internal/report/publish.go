package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"roadsafety/internal/config"
	"roadsafety/internal/experiment"
	"roadsafety/internal/persistence"
	"roadsafety/internal/pipeline"
)

// Publisher writes the configured outputs of a finished run. A failing
// output is logged and returned with the others; it never changes a result.
type Publisher struct {
	Output config.OutputConfig
	Logger *slog.Logger
}

// Artifacts lists what was written.
type Artifacts struct {
	CSV    string
	SQLite string
	RunID  string
	Charts []string
	Bundle string
}

func NewPublisher(out config.OutputConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{Output: out, Logger: logger}
}

func (p *Publisher) Publish(prep *pipeline.Prepared, results []*pipeline.Result) (*Artifacts, []error) {
	art := &Artifacts{}
	var errs []error
	fail := func(output string, err error) {
		p.Logger.Error("output failed", slog.String("output", output), slog.Any("error", err))
		errs = append(errs, fmt.Errorf("%s: %w", output, err))
	}

	if !p.Output.CSV && !p.Output.SQLite && !p.Output.Charts && !p.Output.Bundle {
		return art, nil
	}
	if err := os.MkdirAll(p.Output.Dir, 0o755); err != nil {
		fail("output dir", err)
		return art, errs
	}

	if p.Output.CSV {
		path := filepath.Join(p.Output.Dir, "results.csv")
		rows := make([]experiment.Row, len(results))
		for i, res := range results {
			rows[i] = experiment.NewRow(res)
		}
		if err := experiment.ExportCSV(rows, path); err != nil {
			fail("csv", err)
		} else {
			art.CSV = path
		}
	}

	if p.Output.SQLite {
		path := filepath.Join(p.Output.Dir, "results.sqlite")
		if id, err := saveRun(path, prep, results); err != nil {
			fail("sqlite", err)
		} else {
			art.SQLite, art.RunID = path, id
		}
	}

	if p.Output.Charts {
		for _, res := range results {
			path := filepath.Join(p.Output.Dir, "importance_"+slug(res.Name)+".png")
			features := make([]string, len(res.Ranking))
			values := make([]float64, len(res.Ranking))
			for i, fi := range res.Ranking {
				features[i], values[i] = fi.Feature, fi.Importance
			}
			title := fmt.Sprintf("%s feature importance (%s)", res.Name, res.ImportanceBy)
			if err := ImportanceChart(title, features, values, path); err != nil {
				fail("chart "+res.Name, err)
				continue
			}
			art.Charts = append(art.Charts, path)
		}
	}

	if p.Output.Bundle && len(results) > 0 {
		path := filepath.Join(p.Output.Dir, "model.gob")
		if err := saveBundle(path, prep, (&experiment.Comparison{Results: results}).Best()); err != nil {
			fail("bundle", err)
		} else {
			art.Bundle = path
		}
	}

	for _, path := range append([]string{art.CSV, art.SQLite, art.Bundle}, art.Charts...) {
		if path != "" {
			p.Logger.Info("output written", slog.String("path", path))
		}
	}
	return art, errs
}

func saveRun(path string, prep *pipeline.Prepared, results []*pipeline.Result) (string, error) {
	store, err := OpenStore(path)
	if err != nil {
		return "", err
	}
	defer store.Close()
	return store.SaveRun(prep, results)
}

func saveBundle(path string, prep *pipeline.Prepared, res *pipeline.Result) error {
	bundle := persistence.NewModelBundle(res.Model, prep.Transform, prep.Dataset.Labels)
	bundle.Metadata.ModelName = res.Name
	bundle.Metadata.Dataset = prep.Config.Dataset.Path
	bundle.Metadata.Target = prep.Dataset.Target
	bundle.Metadata.Score = res.Report.Score()
	bundle.Metadata.TrainingTime = res.TrainingTime
	bundle.Metadata.Fingerprint = res.Fingerprint
	if err := bundle.Save(path); err != nil {
		return err
	}
	return bundle.SaveMetadata(strings.TrimSuffix(path, filepath.Ext(path)) + ".txt")
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func slug(name string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
