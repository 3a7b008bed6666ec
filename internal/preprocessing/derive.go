package preprocessing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

type DeriveKind string

const (
	DeriveLog1p  DeriveKind = "log1p"
	DeriveAge    DeriveKind = "age"
	DeriveBucket DeriveKind = "bucket"
	DeriveBins   DeriveKind = "bins"
)

const (
	DefaultReferenceYear = 2023
	DefaultBucketWidth   = 10
)

// Derivation computes a new column row by row from Source. Missing inputs
// give missing outputs.
type Derivation struct {
	Name   string     `yaml:"name"`
	Kind   DeriveKind `yaml:"kind"`
	Source string     `yaml:"source"`

	// age
	ReferenceColumn string   `yaml:"reference_column,omitempty"`
	ReferenceYear   int      `yaml:"reference_year,omitempty"`
	MinAge          *float64 `yaml:"min_age,omitempty"`
	MaxAge          *float64 `yaml:"max_age,omitempty"`

	// bucket
	Width float64 `yaml:"width,omitempty"`

	// bins, closed on the right: (e0, e1], (e1, e2], ...
	Edges  []float64 `yaml:"edges,omitempty"`
	Labels []string  `yaml:"labels,omitempty"`
}

func (d Derivation) Validate() error {
	if d.Name == "" {
		return perrors.NewValidationError("Sanitize", d.Source, "derivation needs a name")
	}
	if d.Name == d.Source {
		return perrors.NewValidationError("Sanitize", d.Name, "derivation must not overwrite its source")
	}
	switch d.Kind {
	case DeriveLog1p, DeriveAge:
	case DeriveBucket:
		if d.Width < 0 {
			return perrors.NewValidationError("Sanitize", d.Name, "bucket width must be positive")
		}
	case DeriveBins:
		if len(d.Edges) < 2 {
			return perrors.NewValidationError("Sanitize", d.Name, "bins need at least two edges")
		}
		for i := 1; i < len(d.Edges); i++ {
			if d.Edges[i] <= d.Edges[i-1] {
				return perrors.NewValidationError("Sanitize", d.Name, "bin edges must increase")
			}
		}
		if len(d.Labels) > 0 && len(d.Labels) != len(d.Edges)-1 {
			return perrors.NewValidationError("Sanitize", d.Name,
				fmt.Sprintf("%d bins need %d labels, got %d", len(d.Edges)-1, len(d.Edges)-1, len(d.Labels)))
		}
	default:
		return perrors.NewValidationError("Sanitize", d.Name, fmt.Sprintf("unknown derivation %q", d.Kind))
	}
	return nil
}

func derive(t *data.Table, d Derivation) (*data.Column, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	src, err := t.Lookup("Sanitize", d.Source)
	if err != nil {
		return nil, err
	}
	if src.Kind == data.Categorical {
		return nil, perrors.NewValidationError("Sanitize", d.Source,
			fmt.Sprintf("%s derivation requires a numeric column", d.Kind))
	}

	switch d.Kind {
	case DeriveLog1p:
		return deriveNumeric(d.Name, src, func(i int, x decimal.Decimal) (decimal.Decimal, bool) {
			f, _ := x.Float64()
			if f <= -1 {
				return decimal.Zero, false
			}
			return decimal.NewFromFloat(math.Log1p(f)), true
		}), nil

	case DeriveAge:
		return deriveAge(t, d, src)

	case DeriveBucket:
		width := decimal.NewFromFloat(d.Width)
		if d.Width == 0 {
			width = decimal.NewFromInt(DefaultBucketWidth)
		}
		return deriveNumeric(d.Name, src, func(i int, x decimal.Decimal) (decimal.Decimal, bool) {
			return x.Div(width).Floor().Mul(width), true
		}), nil

	default:
		return deriveBins(d, src), nil
	}
}

func deriveNumeric(name string, src *data.Column, fn func(i int, x decimal.Decimal) (decimal.Decimal, bool)) *data.Column {
	cells := make([]data.Cell, src.Len())
	for i, cell := range src.Cells {
		if !cell.Valid {
			continue
		}
		if v, ok := fn(i, cell.Num); ok {
			cells[i] = data.Cell{Num: v, Valid: true}
		}
	}
	return &data.Column{Name: name, Kind: data.Numeric, Cells: cells}
}

func deriveAge(t *data.Table, d Derivation, src *data.Column) (*data.Column, error) {
	var ref *data.Column
	if d.ReferenceColumn != "" {
		col, err := t.Lookup("Sanitize", d.ReferenceColumn)
		if err != nil {
			return nil, err
		}
		ref = col
	}
	year := d.ReferenceYear
	if year == 0 {
		year = DefaultReferenceYear
	}
	constant := decimal.NewFromInt(int64(year))

	return deriveNumeric(d.Name, src, func(i int, built decimal.Decimal) (decimal.Decimal, bool) {
		base := constant
		if ref != nil {
			if !ref.Cells[i].Valid {
				return decimal.Zero, false
			}
			base = ref.Cells[i].Num
		}
		age := base.Sub(built)
		f, _ := age.Float64()
		if d.MinAge != nil && f < *d.MinAge {
			return decimal.Zero, false
		}
		if d.MaxAge != nil && f > *d.MaxAge {
			return decimal.Zero, false
		}
		return age, true
	}), nil
}

func deriveBins(d Derivation, src *data.Column) *data.Column {
	labels := d.Labels
	if len(labels) == 0 {
		labels = make([]string, len(d.Edges)-1)
		for i := range labels {
			labels[i] = fmt.Sprintf("(%s, %s]", formatEdge(d.Edges[i]), formatEdge(d.Edges[i+1]))
		}
	}

	cells := make([]data.Cell, src.Len())
	for i := range src.Cells {
		x, ok := src.Float(i)
		if !ok {
			continue
		}
		for b := 0; b < len(d.Edges)-1; b++ {
			if x > d.Edges[b] && x <= d.Edges[b+1] {
				cells[i] = data.Cell{Str: labels[b], Valid: true}
				break
			}
		}
	}
	return &data.Column{Name: d.Name, Kind: data.Categorical, Cells: cells}
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
