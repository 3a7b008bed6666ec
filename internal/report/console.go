// Package report presents finished results. Nothing here feeds back into a
// metric report; every output is best effort.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"roadsafety/internal/data"
	"roadsafety/internal/evaluation"
	"roadsafety/internal/experiment"
	"roadsafety/internal/jobs"
	"roadsafety/internal/pipeline"
	"roadsafety/internal/preprocessing"
)

type Console struct {
	w      io.Writer
	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	blue   func(a ...interface{}) string
}

func NewConsole(w io.Writer) *Console {
	return &Console{
		w:      w,
		green:  color.New(color.FgGreen).SprintFunc(),
		red:    color.New(color.FgRed).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		cyan:   color.New(color.FgCyan).SprintFunc(),
		blue:   color.New(color.FgBlue).SprintFunc(),
	}
}

func (c *Console) rule(n int, ch string) {
	fmt.Fprintln(c.w, strings.Repeat(ch, n))
}

// Summary prints the data preparation outcome.
func (c *Console) Summary(prep *pipeline.Prepared) {
	fmt.Fprintln(c.w, c.blue("\nDataset:"))
	c.rule(60, "═")
	fmt.Fprintf(c.w, "Samples:    %d (train %d, test %d)\n",
		prep.Dataset.NumSamples(), len(prep.Partition.Train), len(prep.Partition.Test))
	fmt.Fprintf(c.w, "Features:   %s\n", strings.Join(prep.Features(), ", "))
	fmt.Fprintf(c.w, "Target:     %s\n", prep.Dataset.Target)
	fmt.Fprintf(c.w, "Partition:  %016x\n", prep.Partition.Fingerprint())

	if len(prep.ClassCounts) > 0 {
		fmt.Fprint(c.w, "Train classes:")
		for _, class := range evaluation.ClassesOf(prep.YTrain) {
			fmt.Fprintf(c.w, " %s=%d", c.className(prep.Dataset.Labels, class), prep.ClassCounts[class])
		}
		fmt.Fprintln(c.w)
		if prep.Balanced {
			fmt.Fprintf(c.w, "%s training set balanced to %d samples\n", c.green("✓"), len(prep.YTrain))
		}
	}
	for _, w := range prep.Warnings {
		fmt.Fprintf(c.w, "%s %v\n", c.yellow("!"), w)
	}
}

// Result prints the metric report, cross-validation summary and importance
// ranking of one backend.
func (c *Console) Result(res *pipeline.Result, labels *preprocessing.LabelMap) {
	fmt.Fprintf(c.w, "\n%s %s\n", c.blue("Model:"), res.Name)
	c.rule(60, "═")
	fmt.Fprintf(c.w, "Training time: %v\n", res.TrainingTime)

	switch {
	case res.Report.Classification != nil:
		c.classification(res.Report.Classification, labels)
	case res.Report.Regression != nil:
		fmt.Fprintln(c.w, c.cyan("\nRegression Metrics:"))
		c.rule(60, "─")
		fmt.Fprint(c.w, res.Report.Regression.FormatMetrics())
	}

	if res.CV != nil {
		fmt.Fprintf(c.w, "\n%s %d folds, mean %.4f ± %.4f\n",
			c.cyan("Cross-validation:"), len(res.CV.Scores), res.CV.Mean, res.CV.Std)
	}

	c.Importances(res.Ranking, res.ImportanceBy)
}

func (c *Console) classification(m *evaluation.ClassificationMetrics, labels *preprocessing.LabelMap) {
	fmt.Fprintln(c.w, c.cyan("Confusion Matrix:"))
	fmt.Fprintln(c.w, "(Rows = Actual, Columns = Predicted)")
	fmt.Fprint(c.w, "                  ")
	for _, class := range m.Classes {
		name := c.className(labels, class)
		if len(name) > 8 {
			name = name[:8]
		}
		fmt.Fprintf(c.w, "%-10s", name)
	}
	fmt.Fprintln(c.w)

	for i, actual := range m.Classes {
		fmt.Fprintf(c.w, "%-18s", c.className(labels, actual))
		for j := range m.Classes {
			count := m.ConfusionMatrix[i][j]
			cell := fmt.Sprintf("%-10d", count)
			if i == j {
				cell = c.green(cell)
			} else if count > 0 {
				cell = c.red(cell)
			}
			fmt.Fprint(c.w, cell)
		}
		fmt.Fprintln(c.w)
	}
	if b := m.Binary; b != nil {
		fmt.Fprintf(c.w, "TN=%d FP=%d FN=%d TP=%d\n", b.TN, b.FP, b.FN, b.TP)
	}

	c.rule(60, "─")
	fmt.Fprint(c.w, m.FormatMetrics())

	fmt.Fprintln(c.w, c.cyan("\nPer-Class Metrics:"))
	c.rule(70, "─")
	fmt.Fprintf(c.w, "%-15s %-10s %-10s %-11s %-10s %-8s\n",
		"Class", "Precision", "Recall", "Specificity", "F1-Score", "Support")
	c.rule(70, "─")
	for _, cm := range m.PerClassMetrics {
		fmt.Fprintf(c.w, "%-15s %-10.4f %-10.4f %-11.4f %-10.4f %-8d\n",
			c.className(labels, cm.Class), cm.Precision, cm.Recall, cm.Specificity, cm.F1Score, cm.Support)
	}

	if diff := math.Abs(m.Accuracy - m.BalancedAccuracy); diff > 0.05 {
		fmt.Fprintf(c.w, "\n%s accuracy and balanced accuracy differ by %.3f\n", c.yellow("Note:"), diff)
	}
}

func (c *Console) className(labels *preprocessing.LabelMap, class float64) string {
	if labels != nil {
		if name, err := labels.Decode(class); err == nil {
			return name
		}
	}
	return strconv.FormatFloat(class, 'g', -1, 64)
}

// Importances prints a ranking as percentages of the total.
func (c *Console) Importances(ranking []evaluation.FeatureImportance, method string) {
	if len(ranking) == 0 {
		return
	}
	fmt.Fprintf(c.w, "\n%s (%s)\n", c.cyan("Feature Importance"), method)
	c.rule(60, "─")
	for i, fi := range ranking {
		bar := strings.Repeat("█", int(math.Round(fi.Importance*30)))
		fmt.Fprintf(c.w, "%2d. %-28s %6.2f%% %s\n", i+1, fi.Feature, fi.Importance*100, c.green(bar))
	}
}

// Comparison prints the side-by-side table of several backends and the
// normalized importance of every feature per backend.
func (c *Console) Comparison(cmp *experiment.Comparison) {
	fmt.Fprintln(c.w, c.blue("\nModel Comparison Results:"))
	c.rule(80, "─")
	fmt.Fprintf(c.w, "%-20s %-10s %-10s %-10s %-10s %-10s\n",
		"Model", "Score", "F1/RMSE", "Precision", "Recall", "CV")
	c.rule(80, "─")
	for _, row := range cmp.Rows() {
		second := row.F1Score
		if row.Task == "regression" {
			second = row.RMSE
		}
		fmt.Fprintf(c.w, "%-20s %-10.4f %-10.4f %-10.4f %-10.4f %-10.4f\n",
			row.Model, row.Score, second, row.Precision, row.Recall, row.CVMean)
	}
	c.rule(80, "─")

	if best := cmp.Best(); best != nil {
		fmt.Fprintf(c.w, "\n%s Best model: %s (score %.4f)\n", c.green("★"), best.Name, best.Report.Score())
	}

	table := cmp.ImportanceTable()
	fmt.Fprintln(c.w, c.cyan("\nNormalized importance:"))
	fmt.Fprintf(c.w, "%-28s", "Feature")
	for _, res := range cmp.Results {
		fmt.Fprintf(c.w, " %12s", truncate(res.Name, 12))
	}
	fmt.Fprintln(c.w)
	for _, f := range cmp.Features {
		fmt.Fprintf(c.w, "%-28s", truncate(f, 28))
		for _, v := range table[f] {
			fmt.Fprintf(c.w, " %11.2f%%", v*100)
		}
		fmt.Fprintln(c.w)
	}
}

// Profile prints the dataset verification table.
func (c *Console) Profile(profiles []data.ColumnProfile) {
	fmt.Fprintln(c.w, c.blue("\nColumns:"))
	c.rule(100, "─")
	fmt.Fprintf(c.w, "%-28s %-12s %8s %8s %9s %12s %12s %12s\n",
		"Column", "Kind", "Missing", "%", "Distinct", "Min", "Median", "Max")
	c.rule(100, "─")
	for _, p := range profiles {
		missing := fmt.Sprintf("%8d", p.Missing)
		if p.Missing > 0 {
			missing = c.yellow(missing)
		}
		fmt.Fprintf(c.w, "%-28s %-12s %s %7.2f%% %9d %12s %12s %12s\n",
			truncate(p.Name, 28), p.Kind, missing, p.MissingPct, p.Distinct,
			number(p.Min), number(p.Median), number(p.Max))
	}
}

// Correlations prints the correlation matrix; strong coefficients are
// highlighted.
func (c *Console) Correlations(m *evaluation.CorrelationMatrix) {
	fmt.Fprintln(c.w, c.blue("\nCorrelation Matrix:"))
	c.rule(16+9*len(m.Names), "─")
	fmt.Fprintf(c.w, "%-16s", "")
	for _, name := range m.Names {
		fmt.Fprintf(c.w, " %8s", truncate(name, 8))
	}
	fmt.Fprintln(c.w)
	for i, name := range m.Names {
		fmt.Fprintf(c.w, "%-16s", truncate(name, 16))
		for _, v := range m.Values[i] {
			cell := fmt.Sprintf(" %8.2f", v)
			switch {
			case math.IsNaN(v):
				cell = fmt.Sprintf(" %8s", "-")
			case math.Abs(v) >= 0.5 && v < 1:
				cell = c.yellow(cell)
			}
			fmt.Fprint(c.w, cell)
		}
		fmt.Fprintln(c.w)
	}
}

// Contingency prints a cross tabulation with row percentages and the
// chi-square test.
func (c *Console) Contingency(ct *evaluation.Contingency) {
	fmt.Fprintf(c.w, "\n%s %s x %s\n", c.blue("Contingency:"), ct.Row, ct.Col)
	c.rule(24+14*len(ct.ColLevels), "─")
	fmt.Fprintf(c.w, "%-24s", truncate(ct.Row, 24))
	for _, level := range ct.ColLevels {
		fmt.Fprintf(c.w, " %13s", truncate(level, 13))
	}
	fmt.Fprintln(c.w)
	shares := ct.RowShares()
	for i, level := range ct.RowLevels {
		fmt.Fprintf(c.w, "%-24s", truncate(level, 24))
		for j, n := range ct.Counts[i] {
			fmt.Fprintf(c.w, " %6d %5.1f%%", n, shares[i][j]*100)
		}
		fmt.Fprintln(c.w)
	}

	significant := c.yellow("no")
	if ct.Significant() {
		significant = c.green("yes")
	}
	fmt.Fprintf(c.w, "Chi-square: %.2f  dof: %d  p-value: %.6f  significant: %s\n",
		ct.ChiSquare, ct.DegreesFreedom, ct.PValue, significant)
}

// Jobs prints the training jobs of a comparison with their latest log line.
func (c *Console) Jobs(list []*jobs.Job) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintln(c.w, c.blue("\nJobs:"))
	c.rule(80, "─")
	for _, job := range list {
		status := string(job.GetStatus())
		switch job.GetStatus() {
		case jobs.JobCompleted:
			status = c.green(status)
		case jobs.JobFailed:
			status = c.red(status)
		case jobs.JobCancelled, jobs.JobRunning:
			status = c.yellow(status)
		}
		last := ""
		if logs := job.GetLogs(); len(logs) > 0 {
			last = logs[len(logs)-1]
		}
		fmt.Fprintf(c.w, "%-8s %-20s %-10s %4.0f%% %10s  %s\n",
			job.ID[:8], truncate(job.Description, 20), status, job.GetProgress()*100,
			job.Duration().Round(time.Millisecond), last)
	}
}

// History prints the stored results of one run.
func (c *Console) History(runID string, runs int, results []StoredResult) {
	fmt.Fprintf(c.w, "%s %s (%d runs stored)\n", c.blue("Run:"), runID, runs)
	c.rule(60, "─")
	for i, r := range results {
		marker := " "
		if i == 0 {
			marker = c.green("★")
		}
		fmt.Fprintf(c.w, "%s %-20s %-20s %.4f\n", marker, truncate(r.Model, 20), r.Algorithm, r.Score)
	}
}

// Errors prints reporting failures without failing the run.
func (c *Console) Errors(errs []error) {
	for _, err := range errs {
		fmt.Fprintf(c.w, "%s %v\n", c.red("✗"), err)
	}
}

func number(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
