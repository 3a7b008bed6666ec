package data

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	perrors "roadsafety/internal/errors"
)

// Kind is the declared semantic type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Bool
)

func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Bool:
		return "bool"
	default:
		return "numeric"
	}
}

// ParseKind accepts the names used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "numeric", "number", "float", "int":
		return Numeric, nil
	case "categorical", "category", "string", "text":
		return Categorical, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return Numeric, fmt.Errorf("unknown column type: %s", s)
	}
}

var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissingToken reports whether a raw text value denotes a missing cell.
func IsMissingToken(s string) bool {
	return missingTokens[strings.TrimSpace(s)]
}

// Cell holds one value. Num is meaningful for Numeric and Bool columns
// (bools are 0/1), Str for Categorical ones.
type Cell struct {
	Num   decimal.Decimal
	Str   string
	Valid bool
}

type Column struct {
	Name  string
	Kind  Kind
	Cells []Cell
}

func NewNumericColumn(name string, values []decimal.NullDecimal) *Column {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = Cell{Num: v.Decimal, Valid: v.Valid}
	}
	return &Column{Name: name, Kind: Numeric, Cells: cells}
}

// NewFloatColumn builds a numeric column; NaN and ±Inf become missing cells.
func NewFloatColumn(name string, values []float64) *Column {
	cells := make([]Cell, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		cells[i] = Cell{Num: decimal.NewFromFloat(v), Valid: true}
	}
	return &Column{Name: name, Kind: Numeric, Cells: cells}
}

// NewStringColumn builds a categorical column; missing tokens become missing cells.
func NewStringColumn(name string, values []string) *Column {
	cells := make([]Cell, len(values))
	for i, v := range values {
		if IsMissingToken(v) {
			continue
		}
		cells[i] = Cell{Str: v, Valid: true}
	}
	return &Column{Name: name, Kind: Categorical, Cells: cells}
}

func NewBoolColumn(name string, values []bool) *Column {
	cells := make([]Cell, len(values))
	for i, v := range values {
		n := decimal.Zero
		if v {
			n = decimal.NewFromInt(1)
		}
		cells[i] = Cell{Num: n, Valid: true}
	}
	return &Column{Name: name, Kind: Bool, Cells: cells}
}

func (c *Column) Len() int { return len(c.Cells) }

func (c *Column) IsMissing(i int) bool { return !c.Cells[i].Valid }

func (c *Column) MissingCount() int {
	n := 0
	for _, cell := range c.Cells {
		if !cell.Valid {
			n++
		}
	}
	return n
}

// Float returns the numeric value of row i; ok is false for missing cells
// and categorical columns.
func (c *Column) Float(i int) (float64, bool) {
	cell := c.Cells[i]
	if !cell.Valid || c.Kind == Categorical {
		return math.NaN(), false
	}
	f, _ := cell.Num.Float64()
	return f, true
}

// Text renders row i the way it would appear in a source file.
func (c *Column) Text(i int) string {
	cell := c.Cells[i]
	if !cell.Valid {
		return ""
	}
	switch c.Kind {
	case Categorical:
		return cell.Str
	case Bool:
		if cell.Num.IsZero() {
			return "false"
		}
		return "true"
	default:
		return cell.Num.String()
	}
}

// Floats returns every value of a numeric or bool column, NaN for missing.
func (c *Column) Floats() []float64 {
	out := make([]float64, len(c.Cells))
	for i := range c.Cells {
		out[i], _ = c.Float(i)
	}
	return out
}

// Median of the non-missing values; the two middle values are averaged for
// even counts.
func (c *Column) Median() (decimal.Decimal, bool) {
	values := c.validNums()
	if len(values) == 0 {
		return decimal.Zero, false
	}
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], true
	}
	return values[mid-1].Add(values[mid]).Div(decimal.NewFromInt(2)), true
}

func (c *Column) Mean() (decimal.Decimal, bool) {
	values := c.validNums()
	if len(values) == 0 {
		return decimal.Zero, false
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values)))), true
}

// Distinct returns the sorted distinct non-missing texts of the column.
func (c *Column) Distinct() []string {
	seen := make(map[string]bool)
	for i := range c.Cells {
		if c.Cells[i].Valid {
			seen[c.Text(i)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *Column) validNums() []decimal.Decimal {
	if c.Kind == Categorical {
		return nil
	}
	values := make([]decimal.Decimal, 0, len(c.Cells))
	for _, cell := range c.Cells {
		if cell.Valid {
			values = append(values, cell.Num)
		}
	}
	return values
}

func (c *Column) Clone() *Column {
	cells := make([]Cell, len(c.Cells))
	copy(cells, c.Cells)
	return &Column{Name: c.Name, Kind: c.Kind, Cells: cells}
}

func (c *Column) take(rows []int) *Column {
	cells := make([]Cell, len(rows))
	for i, r := range rows {
		cells[i] = c.Cells[r]
	}
	return &Column{Name: c.Name, Kind: c.Kind, Cells: cells}
}

// Table is an ordered set of equally long columns. It remembers which row of
// the loaded table each of its rows came from.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
	source  []int
}

func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int)}
	for i, col := range columns {
		if i == 0 {
			t.rows = col.Len()
		}
		if _, dup := t.index[col.Name]; dup {
			return nil, perrors.NewValidationError("NewTable", col.Name, "duplicate column name")
		}
		if col.Len() != t.rows {
			return nil, perrors.NewValidationError("NewTable", col.Name,
				fmt.Sprintf("column has %d rows, expected %d", col.Len(), t.rows))
		}
		t.index[col.Name] = len(t.columns)
		t.columns = append(t.columns, col)
	}
	return t, nil
}

func (t *Table) NumRows() int { return t.rows }

func (t *Table) NumCols() int { return len(t.columns) }

func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Lookup is Column with a ColumnNotFoundError for the given operation.
func (t *Table) Lookup(op, name string) (*Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, perrors.NewColumnNotFoundError(op, name)
	}
	return col, nil
}

// SourceRow is the row of the originally loaded table that row i came from.
func (t *Table) SourceRow(i int) int {
	if t.source == nil {
		return i
	}
	return t.source[i]
}

func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.index)), rows: t.rows}
	if t.source != nil {
		out.source = slices.Clone(t.source)
	}
	for i, col := range t.columns {
		out.columns = append(out.columns, col.Clone())
		out.index[col.Name] = i
	}
	return out
}

// Take returns a new table holding the given rows in the given order.
func (t *Table) Take(rows []int) *Table {
	out := &Table{index: make(map[string]int, len(t.index)), rows: len(rows), source: make([]int, len(rows))}
	for k, r := range rows {
		out.source[k] = t.SourceRow(r)
	}
	for i, col := range t.columns {
		out.columns = append(out.columns, col.take(rows))
		out.index[col.Name] = i
	}
	return out
}

// Filter returns the rows for which keep is true, and their indices.
func (t *Table) Filter(keep func(row int) bool) (*Table, []int) {
	rows := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows), rows
}

// Set adds col at the end or replaces the column of the same name in place.
func (t *Table) Set(col *Column) error {
	if len(t.columns) > 0 && col.Len() != t.rows {
		return perrors.NewValidationError("Set", col.Name,
			fmt.Sprintf("column has %d rows, expected %d", col.Len(), t.rows))
	}
	if len(t.columns) == 0 {
		t.rows = col.Len()
	}
	if i, ok := t.index[col.Name]; ok {
		t.columns[i] = col
		return nil
	}
	t.index[col.Name] = len(t.columns)
	t.columns = append(t.columns, col)
	return nil
}

func (t *Table) Drop(name string) {
	i, ok := t.index[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	delete(t.index, name)
	for j := i; j < len(t.columns); j++ {
		t.index[t.columns[j].Name] = j
	}
}

// Equal reports whether both tables hold the same columns, kinds and cells.
func (t *Table) Equal(o *Table) bool {
	if t.rows != o.rows || len(t.columns) != len(o.columns) {
		return false
	}
	for i, col := range t.columns {
		other := o.columns[i]
		if col.Name != other.Name || col.Kind != other.Kind {
			return false
		}
		for r := range col.Cells {
			a, b := col.Cells[r], other.Cells[r]
			if a.Valid != b.Valid || a.Str != b.Str || !a.Num.Equal(b.Num) {
				return false
			}
		}
	}
	return true
}
