package data

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	perrors "roadsafety/internal/errors"
)

type Format string

const (
	FormatAuto    Format = ""
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// LoadOptions controls how a dataset file is decoded.
type LoadOptions struct {
	Format       Format
	Delimiter    rune
	Encodings    []string
	DecimalComma bool
	Sheet        string
	// Types forces the kind of named columns instead of inferring it.
	Types  map[string]Kind
	Logger *slog.Logger
}

var DefaultEncodings = []string{"utf-8", "latin1", "iso-8859-1", "cp1252"}

func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Delimiter: ',',
		Encodings: DefaultEncodings,
	}
}

func (o LoadOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Load reads a tabular file into a Table. Any failure to read the file is a
// LoadError.
func Load(path string, opts LoadOptions) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, perrors.NewLoadError(path, err)
	}

	format := opts.Format
	if format == FormatAuto {
		format = formatFromExt(path)
	}

	var (
		t   *Table
		err error
	)
	switch format {
	case FormatCSV:
		t, err = NewCSVReader(path, opts).Read()
	case FormatXLSX:
		t, err = readXLSX(path, opts)
	case FormatParquet:
		t, err = readParquet(path, opts)
	default:
		return nil, perrors.NewLoadError(path, fmt.Errorf("unsupported format %q", format))
	}
	if err != nil {
		return nil, err
	}

	opts.logger().Info("dataset loaded",
		"path", path,
		"format", string(format),
		"rows", t.NumRows(),
		"columns", t.NumCols())
	return t, nil
}

func formatFromExt(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".parquet", ".pq":
		return FormatParquet
	default:
		return FormatCSV
	}
}

// buildTable turns a header and raw text rows into typed columns.
func buildTable(header []string, rows [][]string, opts LoadOptions) (*Table, error) {
	columns := make([]*Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		raw := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				raw[i] = row[j]
			}
		}

		kind, forced := opts.Types[name]
		if !forced {
			kind = inferKind(raw, opts.DecimalComma)
		}
		col, err := parseColumn(name, kind, raw, opts.DecimalComma)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}
	return NewTable(columns...)
}

func inferKind(values []string, decimalComma bool) Kind {
	seen := 0
	isBool, isNumeric := true, true
	for _, v := range values {
		if IsMissingToken(v) {
			continue
		}
		seen++
		if _, ok := parseBool(v); !ok {
			isBool = false
		}
		if _, err := parseDecimal(v, decimalComma); err != nil {
			isNumeric = false
		}
		if !isBool && !isNumeric {
			return Categorical
		}
	}
	switch {
	case seen == 0:
		return Numeric
	case isBool:
		return Bool
	case isNumeric:
		return Numeric
	default:
		return Categorical
	}
}

func parseColumn(name string, kind Kind, raw []string, decimalComma bool) (*Column, error) {
	cells := make([]Cell, len(raw))
	for i, v := range raw {
		if IsMissingToken(v) {
			continue
		}
		switch kind {
		case Categorical:
			cells[i] = Cell{Str: strings.TrimSpace(v), Valid: true}
		case Bool:
			b, ok := parseBool(v)
			if !ok {
				return nil, perrors.NewValidationError("Load", name, fmt.Sprintf("row %d: %q is not a boolean", i+1, v))
			}
			n := decimal.Zero
			if b {
				n = decimal.NewFromInt(1)
			}
			cells[i] = Cell{Num: n, Valid: true}
		default:
			d, err := parseDecimal(v, decimalComma)
			if err != nil {
				return nil, perrors.NewValidationError("Load", name, fmt.Sprintf("row %d: %q is not numeric", i+1, v))
			}
			cells[i] = Cell{Num: d, Valid: true}
		}
	}
	return &Column{Name: name, Kind: kind, Cells: cells}, nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// parseDecimal accepts "1234.5" and, with decimalComma, "1.234,5".
func parseDecimal(s string, decimalComma bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if decimalComma && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

// convertKind re-types a column that was read with a native type, e.g. a
// numeric code that should be treated as a category.
func convertKind(col *Column, kind Kind) (*Column, error) {
	if col.Kind == kind {
		return col, nil
	}
	raw := make([]string, col.Len())
	for i := range col.Cells {
		raw[i] = col.Text(i)
	}
	return parseColumn(col.Name, kind, raw, false)
}
