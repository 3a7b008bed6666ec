package preprocessing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
)

type FillStrategy string

const (
	FillConstant FillStrategy = "constant"
	FillMedian   FillStrategy = "median"
	FillMean     FillStrategy = "mean"
	// FillDrop removes the rows whose value in the column is missing.
	FillDrop FillStrategy = "drop"
)

type FillRule struct {
	Column   string       `yaml:"column"`
	Strategy FillStrategy `yaml:"strategy"`
	Value    string       `yaml:"value,omitempty"`
}

// OneHotRule expands a categorical column into indicator columns. Reference
// names the dropped category; empty means the first in sorted order.
type OneHotRule struct {
	Column    string `yaml:"column"`
	Reference string `yaml:"reference,omitempty"`
}

// Policy is the declared cleaning plan for a table.
type Policy struct {
	Fill   []FillRule   `yaml:"fill"`
	OneHot []OneHotRule `yaml:"one_hot"`
	Derive []Derivation `yaml:"derive"`
}

// Sanitize applies fills, then one-hot expansion, then derivations, to a copy
// of t. Applying the same policy to its own output changes nothing.
func Sanitize(t *data.Table, p Policy) (*data.Table, error) {
	out := t.Clone()

	for _, rule := range p.Fill {
		col, ok := out.Column(rule.Column)
		if !ok {
			if p.expands(rule.Column) {
				continue
			}
			return nil, perrors.NewColumnNotFoundError("Sanitize", rule.Column)
		}
		next, err := applyFill(out, col, rule)
		if err != nil {
			return nil, err
		}
		out = next
	}

	for _, rule := range p.OneHot {
		if err := applyOneHot(out, rule); err != nil {
			return nil, err
		}
	}

	for _, d := range p.Derive {
		col, err := derive(out, d)
		if err != nil {
			return nil, err
		}
		if err := out.Set(col); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// expands reports whether column is consumed by one of the policy's one-hot
// rules. Such a column is absent from a table the policy was already applied
// to, even when the expansion produced no indicators.
func (p Policy) expands(column string) bool {
	for _, rule := range p.OneHot {
		if rule.Column == column {
			return true
		}
	}
	return false
}

func applyFill(t *data.Table, col *data.Column, rule FillRule) (*data.Table, error) {
	switch rule.Strategy {
	case FillDrop:
		filtered, _ := t.Filter(func(i int) bool { return !col.IsMissing(i) })
		return filtered, nil
	case FillConstant:
		cell, err := constantCell(col, rule.Value)
		if err != nil {
			return nil, err
		}
		fillMissing(col, cell)
		return t, nil
	case FillMedian, FillMean:
		if col.Kind == data.Categorical {
			return nil, perrors.NewValidationError("Sanitize", col.Name,
				fmt.Sprintf("%s fill requires a numeric column", rule.Strategy))
		}
		stat, ok := col.Median()
		if rule.Strategy == FillMean {
			stat, ok = col.Mean()
		}
		if !ok {
			return nil, perrors.NewEmptyColumnError("Sanitize", col.Name)
		}
		fillMissing(col, data.Cell{Num: stat, Valid: true})
		return t, nil
	default:
		return nil, perrors.NewValidationError("Sanitize", col.Name,
			fmt.Sprintf("unknown fill strategy %q", rule.Strategy))
	}
}

func constantCell(col *data.Column, value string) (data.Cell, error) {
	switch col.Kind {
	case data.Categorical:
		return data.Cell{Str: value, Valid: true}, nil
	case data.Bool:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1":
			return data.Cell{Num: decimal.NewFromInt(1), Valid: true}, nil
		case "false", "0":
			return data.Cell{Num: decimal.Zero, Valid: true}, nil
		}
	default:
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return data.Cell{Num: d, Valid: true}, nil
		}
	}
	return data.Cell{}, perrors.NewValidationError("Sanitize", col.Name,
		fmt.Sprintf("fill value %q does not match column type %s", value, col.Kind))
}

func fillMissing(col *data.Column, cell data.Cell) {
	for i := range col.Cells {
		if !col.Cells[i].Valid {
			col.Cells[i] = cell
		}
	}
}

func applyOneHot(t *data.Table, rule OneHotRule) error {
	col, ok := t.Column(rule.Column)
	if !ok {
		// Already expanded. Columns missing from the raw table are reported
		// before sanitizing.
		return nil
	}

	categories := col.Distinct()
	reference := rule.Reference
	switch {
	case reference == "" && len(categories) > 0:
		reference = categories[0]
	case reference != "" && !slices.Contains(categories, reference):
		return perrors.NewValidationError("Sanitize", rule.Column,
			fmt.Sprintf("reference category %q does not occur in the column", reference))
	}

	for _, category := range categories {
		if category == reference {
			continue
		}
		name := rule.Column + "_" + category
		if _, clash := t.Column(name); clash {
			return perrors.NewValidationError("Sanitize", name, "indicator column already exists")
		}
		values := make([]bool, col.Len())
		for i := range values {
			values[i] = col.Cells[i].Valid && col.Text(i) == category
		}
		if err := t.Set(data.NewBoolColumn(name, values)); err != nil {
			return err
		}
	}
	t.Drop(rule.Column)
	return nil
}
