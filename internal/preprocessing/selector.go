package preprocessing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

type FilterOp string

const (
	OpGreater      FilterOp = ">"
	OpGreaterEqual FilterOp = ">="
	OpLess         FilterOp = "<"
	OpLessEqual    FilterOp = "<="
	OpEqual        FilterOp = "=="
	OpNotEqual     FilterOp = "!="
	OpNotNull      FilterOp = "notnull"
)

// RowFilter keeps rows whose Column value satisfies Op against Value. Rows
// with a missing value never pass.
type RowFilter struct {
	Column string   `yaml:"column"`
	Op     FilterOp `yaml:"op"`
	Value  string   `yaml:"value,omitempty"`
}

type Selection struct {
	Features []string           `yaml:"features"`
	Target   string             `yaml:"target"`
	Remap    map[string]float64 `yaml:"remap,omitempty"`
	// EncodeTarget codes a categorical target by sorted label when no remap is given.
	EncodeTarget bool        `yaml:"encode_target,omitempty"`
	Filters      []RowFilter `yaml:"filters,omitempty"`
}

// Dataset is the numeric matrix handed to the model stages. NaN marks a
// missing feature value.
type Dataset struct {
	X        [][]float64
	Y        []float64
	Features []string
	Target   string
	// Rows holds the index of each sample in the sanitized table.
	Rows   []int
	Labels *LabelMap
}

func (d *Dataset) NumSamples() int { return len(d.X) }

func (d *Dataset) NumFeatures() int { return len(d.Features) }

// Subset copies the given samples into a new dataset.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		X:        make([][]float64, len(idx)),
		Y:        make([]float64, len(idx)),
		Rows:     make([]int, len(idx)),
		Features: d.Features,
		Target:   d.Target,
		Labels:   d.Labels,
	}
	for i, r := range idx {
		out.X[i] = append([]float64(nil), d.X[r]...)
		out.Y[i] = d.Y[r]
		out.Rows[i] = d.Rows[r]
	}
	return out
}

// Select filters the table, then extracts the feature matrix and the target.
func Select(t *data.Table, s Selection) (*Dataset, error) {
	if len(s.Features) == 0 {
		return nil, perrors.NewInvalidInputError("Select", "feature set is empty")
	}
	if err := ResolveColumns(t, s); err != nil {
		return nil, err
	}

	filtered, rows, err := applyFilters(t, s.Filters)
	if err != nil {
		return nil, err
	}

	features := make([]*data.Column, len(s.Features))
	for j, name := range s.Features {
		col, _ := filtered.Column(name)
		if col.Kind == data.Categorical {
			return nil, perrors.NewValidationError("Select", name,
				"categorical feature must be one-hot encoded first")
		}
		features[j] = col
	}

	n := filtered.NumRows()
	X := make([][]float64, n)
	for i := range X {
		X[i] = make([]float64, len(features))
		for j, col := range features {
			X[i][j], _ = col.Float(i)
		}
	}

	target, _ := filtered.Column(s.Target)
	y, labels, err := encodeTarget(target, s)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		X:        X,
		Y:        y,
		Features: append([]string(nil), s.Features...),
		Target:   s.Target,
		Rows:     rows,
		Labels:   labels,
	}, nil
}

// ResolveColumns fails with ColumnNotFoundError on the first column the
// selection names that the table lacks.
func ResolveColumns(t *data.Table, s Selection) error {
	names := append([]string{}, s.Features...)
	names = append(names, s.Target)
	for _, f := range s.Filters {
		names = append(names, f.Column)
	}
	for _, name := range names {
		if _, err := t.Lookup("Select", name); err != nil {
			return err
		}
	}
	return nil
}

func encodeTarget(target *data.Column, s Selection) ([]float64, *LabelMap, error) {
	var labels *LabelMap
	switch {
	case len(s.Remap) > 0:
		labels = NewLabelMap(s.Remap)
	case target.Kind == data.Categorical && s.EncodeTarget:
		texts := make([]string, 0, target.Len())
		for i := range target.Cells {
			if !target.IsMissing(i) {
				texts = append(texts, target.Text(i))
			}
		}
		labels = FitLabelMap(texts)
	case target.Kind == data.Categorical:
		return nil, nil, perrors.NewValidationError("Select", target.Name,
			"categorical target needs a label remap")
	}

	y := make([]float64, target.Len())
	for i := range target.Cells {
		if target.IsMissing(i) {
			return nil, nil, perrors.NewValidationError("Select", target.Name,
				fmt.Sprintf("missing target value at row %d", i))
		}
		if labels == nil {
			y[i], _ = target.Float(i)
			continue
		}
		value := target.Text(i)
		code, ok := labels.Encode(value)
		if !ok {
			return nil, nil, perrors.NewUnmappedLabelError(target.Name, value)
		}
		y[i] = code
	}
	return y, labels, nil
}

func applyFilters(t *data.Table, filters []RowFilter) (*data.Table, []int, error) {
	if len(filters) == 0 {
		rows := make([]int, t.NumRows())
		for i := range rows {
			rows[i] = i
		}
		return t, rows, nil
	}

	predicates := make([]func(int) bool, len(filters))
	for k, f := range filters {
		col, _ := t.Column(f.Column)
		pred, err := compilePredicate(col, f)
		if err != nil {
			return nil, nil, err
		}
		predicates[k] = pred
	}

	filtered, rows := t.Filter(func(i int) bool {
		for _, pred := range predicates {
			if !pred(i) {
				return false
			}
		}
		return true
	})
	return filtered, rows, nil
}

func compilePredicate(col *data.Column, f RowFilter) (func(int) bool, error) {
	if f.Op == OpNotNull {
		return func(i int) bool { return !col.IsMissing(i) }, nil
	}

	if col.Kind == data.Categorical {
		value := strings.TrimSpace(f.Value)
		switch f.Op {
		case OpEqual:
			return func(i int) bool { return !col.IsMissing(i) && col.Text(i) == value }, nil
		case OpNotEqual:
			return func(i int) bool { return !col.IsMissing(i) && col.Text(i) != value }, nil
		default:
			return nil, perrors.NewValidationError("Select", col.Name,
				fmt.Sprintf("operator %q is not defined for categorical columns", f.Op))
		}
	}

	threshold, err := decimal.NewFromString(strings.TrimSpace(f.Value))
	if err != nil {
		return nil, perrors.NewValidationError("Select", col.Name,
			fmt.Sprintf("filter value %q is not numeric", f.Value))
	}

	var cmp func(c int) bool
	switch f.Op {
	case OpGreater:
		cmp = func(c int) bool { return c > 0 }
	case OpGreaterEqual:
		cmp = func(c int) bool { return c >= 0 }
	case OpLess:
		cmp = func(c int) bool { return c < 0 }
	case OpLessEqual:
		cmp = func(c int) bool { return c <= 0 }
	case OpEqual:
		cmp = func(c int) bool { return c == 0 }
	case OpNotEqual:
		cmp = func(c int) bool { return c != 0 }
	default:
		return nil, perrors.NewValidationError("Select", col.Name, fmt.Sprintf("unknown filter operator %q", f.Op))
	}

	return func(i int) bool {
		cell := col.Cells[i]
		return cell.Valid && cmp(cell.Num.Cmp(threshold))
	}, nil
}
