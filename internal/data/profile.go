package data

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnProfile summarizes one column. Numeric statistics are NaN for
// categorical columns and for columns without any value.
type ColumnProfile struct {
	Name       string
	Kind       Kind
	Rows       int
	Missing    int
	MissingPct float64
	Distinct   int
	Min        float64
	Max        float64
	Mean       float64
	Median     float64
}

func Profile(t *Table) []ColumnProfile {
	profiles := make([]ColumnProfile, 0, t.NumCols())
	for _, name := range t.Columns() {
		col, _ := t.Column(name)
		p := ColumnProfile{
			Name:     name,
			Kind:     col.Kind,
			Rows:     col.Len(),
			Missing:  col.MissingCount(),
			Distinct: len(col.Distinct()),
			Min:      math.NaN(),
			Max:      math.NaN(),
			Mean:     math.NaN(),
			Median:   math.NaN(),
		}
		if p.Rows > 0 {
			p.MissingPct = 100 * float64(p.Missing) / float64(p.Rows)
		}

		if col.Kind != Categorical {
			values := presentFloats(col)
			if len(values) > 0 {
				sort.Float64s(values)
				p.Min = floats.Min(values)
				p.Max = floats.Max(values)
				p.Mean = stat.Mean(values, nil)
				p.Median = sortedMedian(values)
			}
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func presentFloats(col *Column) []float64 {
	values := make([]float64, 0, col.Len())
	for i := range col.Cells {
		if v, ok := col.Float(i); ok {
			values = append(values, v)
		}
	}
	return values
}

func sortedMedian(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
