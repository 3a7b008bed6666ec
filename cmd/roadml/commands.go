package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"roadsafety/internal/data"
	"roadsafety/internal/evaluation"
	"roadsafety/internal/experiment"
	"roadsafety/internal/persistence"
	"roadsafety/internal/pipeline"
	"roadsafety/internal/preprocessing"
	"roadsafety/internal/report"
)

func addCommands(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare the dataset, train the primary model and report",
		Args:  cobra.NoArgs,
		RunE:  runModel}
	cmd.Flags().String("model", "", "model name to train instead of the first configured one")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "compare",
		Short: "Train every configured model on the same partitions and compare them",
		Args:  cobra.NoArgs,
		RunE:  compareModels}
	cmd.Flags().Int("workers", 4, "models trained concurrently")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "inspect",
		Short: "Profile the dataset columns",
		Args:  cobra.NoArgs,
		RunE:  inspectData}
	cmd.Flags().Bool("sanitized", false, "profile the table after the column policy")
	cmd.Flags().Bool("correlation", false, "print the correlation matrix of the selected features and target")
	cmd.Flags().StringSlice("crosstab", nil, "cross-tabulate two columns and test their independence: row,col")
	cmd.Flags().Int("top", 10, "most frequent crosstab column levels kept, 0 for all")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "predict bundle input",
		Short: "Predict a new file with a saved model bundle",
		Args:  cobra.ExactArgs(2),
		RunE:  predictFile}
	cmd.Flags().String("out", "predictions.csv", "predictions file")
	cmd.Flags().Int("batch-size", 1000, "rows per prediction batch")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show the stored results of a run, the latest by default",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showHistory}
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "map",
		Short: "Render the dataset rows with coordinates as an HTML map",
		Args:  cobra.NoArgs,
		RunE:  renderMap}
	cmd.Flags().Bool("sanitized", false, "map the table after the column policy")
	root.AddCommand(cmd)
}

func runModel(cmd *cobra.Command, args []string) error {
	action, err := newAction(cmd)
	if err != nil {
		return err
	}
	cfg, err := action.loadConfig()
	if err != nil {
		return err
	}

	mc := cfg.Models[0]
	if name := getString(cmd, "model"); name != "" {
		if mc, err = cfg.Model(name); err != nil {
			return err
		}
	}

	prep, err := pipeline.Prepare(cmd.Context(), cfg, action.logger)
	if err != nil {
		return err
	}
	res, err := pipeline.Train(cmd.Context(), prep, mc)
	if err != nil {
		return err
	}

	console := report.NewConsole(cmd.OutOrStdout())
	console.Summary(prep)
	console.Result(res, prep.Dataset.Labels)

	_, errs := report.NewPublisher(cfg.Output, action.logger).Publish(prep, []*pipeline.Result{res})
	console.Errors(errs)
	return nil
}

func compareModels(cmd *cobra.Command, args []string) error {
	action, err := newAction(cmd)
	if err != nil {
		return err
	}
	cfg, err := action.loadConfig()
	if err != nil {
		return err
	}

	prep, err := pipeline.Prepare(cmd.Context(), cfg, action.logger)
	if err != nil {
		return err
	}

	runner := experiment.NewRunner(action.logger)
	workers, _ := cmd.Flags().GetInt("workers")
	runner.MaxWorkers = workers
	cmp, err := runner.Compare(cmd.Context(), prep, cfg.Models)
	console := report.NewConsole(cmd.OutOrStdout())
	if err != nil {
		console.Jobs(runner.Jobs.ListJobs())
		return err
	}

	console.Summary(prep)
	for _, res := range cmp.Results {
		console.Result(res, prep.Dataset.Labels)
	}
	console.Comparison(cmp)
	console.Jobs(runner.Jobs.ListJobs())

	_, errs := report.NewPublisher(cfg.Output, action.logger).Publish(prep, cmp.Results)
	console.Errors(errs)
	return nil
}

func inspectData(cmd *cobra.Command, args []string) error {
	action, err := newAction(cmd)
	if err != nil {
		return err
	}
	cfg, err := action.loadConfig()
	if err != nil {
		return err
	}

	table, err := pipeline.LoadTable(cmd.Context(), cfg, action.logger)
	if err != nil {
		return err
	}
	if getBool(cmd, "sanitized") {
		if table, err = preprocessing.Sanitize(table, cfg.Sanitize); err != nil {
			return err
		}
	}

	console := report.NewConsole(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d columns\n", cfg.Dataset.Path, table.NumRows(), table.NumCols())
	console.Profile(data.Profile(table))

	if getBool(cmd, "correlation") {
		clean := table
		if !getBool(cmd, "sanitized") {
			if clean, err = preprocessing.Sanitize(table, cfg.Sanitize); err != nil {
				return err
			}
		}
		ds, err := preprocessing.Select(clean, cfg.Selection)
		if err != nil {
			return err
		}
		corr, err := evaluation.Correlations(ds.Features, ds.X, ds.Target, ds.Y)
		if err != nil {
			return err
		}
		console.Correlations(corr)
	}

	if pair, _ := cmd.Flags().GetStringSlice("crosstab"); len(pair) > 0 {
		if len(pair) != 2 {
			return fmt.Errorf("--crosstab takes two columns, got %d", len(pair))
		}
		row, err := cfg.Resolve(pair[0])
		if err != nil {
			return err
		}
		col, err := cfg.Resolve(pair[1])
		if err != nil {
			return err
		}
		top, _ := cmd.Flags().GetInt("top")
		ct, err := evaluation.NewContingency(table, row, col, top)
		if err != nil {
			return err
		}
		console.Contingency(ct)
	}
	return nil
}

// predictFile loads a new file with the configured options and column
// policy, then writes one decoded prediction per row.
func predictFile(cmd *cobra.Command, args []string) error {
	action, err := newAction(cmd)
	if err != nil {
		return err
	}
	cfg, err := action.loadConfig()
	if err != nil {
		return err
	}

	bundle, err := persistence.LoadModelBundle(args[0])
	if err != nil {
		return err
	}

	opts, err := cfg.LoadOptions()
	if err != nil {
		return err
	}
	opts.Logger = action.logger
	table, err := data.Load(args[1], opts)
	if err != nil {
		return err
	}
	if table, err = preprocessing.Sanitize(table, cfg.Sanitize); err != nil {
		return err
	}

	X, err := bundle.FeatureMatrix(table)
	if err != nil {
		return err
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	predictions, err := bundle.Predict(X, batchSize)
	if err != nil {
		return err
	}
	labels, err := bundle.Decode(predictions)
	if err != nil {
		return err
	}

	out := getString(cmd, "out")
	rows := make([]int, table.NumRows())
	for i := range rows {
		rows[i] = table.SourceRow(i)
	}
	if err := writePredictions(out, rows, predictions, labels); err != nil {
		return err
	}
	action.logger.Info("predictions written",
		slog.String("model", bundle.Metadata.ModelName),
		slog.Int("rows", len(predictions)),
		slog.String("path", out))
	return nil
}

// writePredictions writes one record per prediction; row is the record's
// position in the input file, which differs from i when the column policy
// drops rows.
func writePredictions(path string, rows []int, predictions []float64, labels []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"row", "prediction", "label"}); err != nil {
		return err
	}
	for i, p := range predictions {
		record := []string{strconv.Itoa(rows[i]), strconv.FormatFloat(p, 'g', -1, 64), labels[i]}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func showHistory(cmd *cobra.Command, args []string) error {
	action, err := newAction(cmd)
	if err != nil {
		return err
	}
	cfg, err := action.loadConfig()
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.Output.Dir, "results.sqlite")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no results store: %w", err)
	}
	store, err := report.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RunCount()
	if err != nil {
		return err
	}
	var runID string
	if len(args) == 1 {
		runID = args[0]
	} else {
		var ok bool
		if runID, ok, err = store.LatestRun(); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("no runs stored in %s", path)
		}
	}

	results, err := store.Results(runID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	report.NewConsole(cmd.OutOrStdout()).History(runID, runs, results)
	return nil
}

func renderMap(cmd *cobra.Command, args []string) error {
	action, err := newAction(cmd)
	if err != nil {
		return err
	}
	cfg, err := action.loadConfig()
	if err != nil {
		return err
	}

	table, err := pipeline.LoadTable(cmd.Context(), cfg, action.logger)
	if err != nil {
		return err
	}
	if getBool(cmd, "sanitized") {
		if table, err = preprocessing.Sanitize(table, cfg.Sanitize); err != nil {
			return err
		}
	}

	points, err := report.MapPoints(table, cfg.Map)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.Output.Dir, "map.html")
	if err := report.WriteMap(path, cfg.Map.Title, cfg.Map.Popup, points); err != nil {
		return err
	}
	action.logger.Info("map written", slog.String("path", path), slog.Int("markers", len(points)))
	return nil
}
