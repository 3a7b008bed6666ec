package evaluation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

// Significance is the p-value below which an association is reported as
// significant.
const Significance = 0.05

// CorrelationMatrix holds Pearson coefficients between named variables.
// Each pair uses the rows where both values are present; a pair with fewer
// than two such rows or a constant side is NaN.
type CorrelationMatrix struct {
	Names  []string
	Values [][]float64
}

// Correlations computes the correlation matrix of the feature columns of X
// followed by the target y, missing values being NaN.
func Correlations(features []string, X [][]float64, target string, y []float64) (*CorrelationMatrix, error) {
	if len(X) != len(y) {
		return nil, perrors.NewInvalidInputError("Correlations",
			fmt.Sprintf("feature matrix and target have different lengths: %d vs %d", len(X), len(y)))
	}
	columns := make([][]float64, len(features)+1)
	for j := range features {
		columns[j] = make([]float64, len(X))
		for i, row := range X {
			if len(row) != len(features) {
				return nil, perrors.NewInvalidInputError("Correlations",
					fmt.Sprintf("row %d has %d values, expected %d", i, len(row), len(features)))
			}
			columns[j][i] = row[j]
		}
	}
	columns[len(features)] = y

	names := append(append([]string(nil), features...), target)
	values := make([][]float64, len(names))
	for i := range values {
		values[i] = make([]float64, len(names))
	}
	for i := range names {
		for j := i; j < len(names); j++ {
			r := pairwise(columns[i], columns[j])
			values[i][j], values[j][i] = r, r
		}
	}
	return &CorrelationMatrix{Names: names, Values: values}, nil
}

func pairwise(a, b []float64) float64 {
	var x, y []float64
	for i := range a {
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			x = append(x, a[i])
			y = append(y, b[i])
		}
	}
	if len(x) < 2 || stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// Get returns the coefficient between two named variables.
func (m *CorrelationMatrix) Get(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, name := range m.Names {
		if name == a {
			i = k
		}
		if name == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// Contingency is a cross tabulation of two categorical columns with the
// chi-square test of independence.
type Contingency struct {
	Row, Col       string
	RowLevels      []string
	ColLevels      []string
	Counts         [][]int
	N              int
	ChiSquare      float64
	DegreesFreedom int
	PValue         float64
}

// NewContingency cross-tabulates two columns of t over the rows where both
// are present. A positive top keeps only the top most frequent column
// levels, and rows left empty by that are dropped. With one degree of
// freedom the statistic uses Yates' continuity correction.
func NewContingency(t *data.Table, row, col string, top int) (*Contingency, error) {
	rc, err := t.Lookup("Contingency", row)
	if err != nil {
		return nil, err
	}
	cc, err := t.Lookup("Contingency", col)
	if err != nil {
		return nil, err
	}

	colFreq := make(map[string]int)
	for i := 0; i < t.NumRows(); i++ {
		if !rc.IsMissing(i) && !cc.IsMissing(i) {
			colFreq[cc.Text(i)]++
		}
	}
	if len(colFreq) == 0 {
		return nil, perrors.NewEmptyColumnError("Contingency", col)
	}

	colLevels := make([]string, 0, len(colFreq))
	for level := range colFreq {
		colLevels = append(colLevels, level)
	}
	sort.Slice(colLevels, func(i, j int) bool {
		a, b := colLevels[i], colLevels[j]
		if colFreq[a] != colFreq[b] {
			return colFreq[a] > colFreq[b]
		}
		return a < b
	})
	if top > 0 && len(colLevels) > top {
		colLevels = colLevels[:top]
	}
	colIdx := make(map[string]int, len(colLevels))
	for j, level := range colLevels {
		colIdx[level] = j
	}

	byRow := make(map[string][]int)
	for i := 0; i < t.NumRows(); i++ {
		if rc.IsMissing(i) || cc.IsMissing(i) {
			continue
		}
		j, ok := colIdx[cc.Text(i)]
		if !ok {
			continue
		}
		level := rc.Text(i)
		if byRow[level] == nil {
			byRow[level] = make([]int, len(colLevels))
		}
		byRow[level][j]++
	}

	ct := &Contingency{Row: row, Col: col, ColLevels: colLevels}
	for level := range byRow {
		ct.RowLevels = append(ct.RowLevels, level)
	}
	sort.Strings(ct.RowLevels)
	for _, level := range ct.RowLevels {
		ct.Counts = append(ct.Counts, byRow[level])
		for _, n := range byRow[level] {
			ct.N += n
		}
	}
	ct.test()
	return ct, nil
}

func (ct *Contingency) test() {
	rows, cols := len(ct.RowLevels), len(ct.ColLevels)
	ct.DegreesFreedom = (rows - 1) * (cols - 1)
	if ct.DegreesFreedom == 0 {
		ct.ChiSquare, ct.PValue = 0, 1
		return
	}

	rowSum := make([]float64, rows)
	colSum := make([]float64, cols)
	for i, counts := range ct.Counts {
		for j, n := range counts {
			rowSum[i] += float64(n)
			colSum[j] += float64(n)
		}
	}

	obs := make([]float64, 0, rows*cols)
	exp := make([]float64, 0, rows*cols)
	for i, counts := range ct.Counts {
		for j, n := range counts {
			o := float64(n)
			e := rowSum[i] * colSum[j] / float64(ct.N)
			if ct.DegreesFreedom == 1 {
				diff := o - e
				o -= math.Copysign(math.Min(0.5, math.Abs(diff)), diff)
			}
			obs = append(obs, o)
			exp = append(exp, e)
		}
	}

	ct.ChiSquare = stat.ChiSquare(obs, exp)
	ct.PValue = distuv.ChiSquared{K: float64(ct.DegreesFreedom)}.Survival(ct.ChiSquare)
}

// Significant reports whether the test rejects independence at Significance.
func (ct *Contingency) Significant() bool {
	return ct.PValue < Significance
}

// RowShares returns each row's counts as fractions of the row total.
func (ct *Contingency) RowShares() [][]float64 {
	shares := make([][]float64, len(ct.Counts))
	for i, counts := range ct.Counts {
		total := 0
		for _, n := range counts {
			total += n
		}
		shares[i] = make([]float64, len(counts))
		for j, n := range counts {
			shares[i][j] = safeDivide(float64(n), float64(total))
		}
	}
	return shares
}
