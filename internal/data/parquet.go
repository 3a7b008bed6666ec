package data

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/shopspring/decimal"

	perrors "roadsafety/internal/errors"
)

func readParquet(path string, opts LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.NewLoadError(path, err)
	}
	defer f.Close()

	pqReader, err := file.NewParquetReader(f)
	if err != nil {
		return nil, perrors.NewLoadError(path, fmt.Errorf("creating parquet file reader: %w", err))
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, perrors.NewLoadError(path, fmt.Errorf("creating arrow file reader: %w", err))
	}

	tbl, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, perrors.NewLoadError(path, fmt.Errorf("reading table: %w", err))
	}
	defer tbl.Release()

	schema := tbl.Schema()
	columns := make([]*Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		field := schema.Field(i)
		col, err := arrowColumn(field.Name, tbl.Column(i))
		if err != nil {
			return nil, perrors.NewLoadError(path, fmt.Errorf("column %s: %w", field.Name, err))
		}
		if kind, ok := opts.Types[field.Name]; ok {
			if col, err = convertKind(col, kind); err != nil {
				return nil, err
			}
		}
		columns = append(columns, col)
	}
	return NewTable(columns...)
}

func arrowColumn(name string, column *arrow.Column) (*Column, error) {
	col := &Column{Name: name, Cells: make([]Cell, 0, column.Len())}
	switch column.DataType().ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		col.Kind = Categorical
	case arrow.BOOL:
		col.Kind = Bool
	default:
		col.Kind = Numeric
	}

	for _, chunk := range column.Data().Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				col.Cells = append(col.Cells, Cell{})
				continue
			}
			cell, err := arrowCell(chunk, i)
			if err != nil {
				return nil, err
			}
			col.Cells = append(col.Cells, cell)
		}
	}
	return col, nil
}

func arrowCell(arr arrow.Array, i int) (Cell, error) {
	switch a := arr.(type) {
	case *array.Float64:
		v := a.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Cell{}, nil
		}
		return Cell{Num: decimal.NewFromFloat(v), Valid: true}, nil
	case *array.Float32:
		v := float64(a.Value(i))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Cell{}, nil
		}
		return Cell{Num: decimal.NewFromFloat32(a.Value(i)), Valid: true}, nil
	case *array.Int64:
		return Cell{Num: decimal.NewFromInt(a.Value(i)), Valid: true}, nil
	case *array.Int32:
		return Cell{Num: decimal.NewFromInt32(a.Value(i)), Valid: true}, nil
	case *array.Int16:
		return Cell{Num: decimal.NewFromInt(int64(a.Value(i))), Valid: true}, nil
	case *array.Int8:
		return Cell{Num: decimal.NewFromInt(int64(a.Value(i))), Valid: true}, nil
	case *array.String:
		return Cell{Str: a.Value(i), Valid: true}, nil
	case *array.LargeString:
		return Cell{Str: a.Value(i), Valid: true}, nil
	case *array.Boolean:
		n := decimal.Zero
		if a.Value(i) {
			n = decimal.NewFromInt(1)
		}
		return Cell{Num: n, Valid: true}, nil
	default:
		return Cell{}, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}
