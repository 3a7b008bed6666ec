package data

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	perrors "roadsafety/internal/errors"
)

func readXLSX(path string, opts LoadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, perrors.NewLoadError(path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, perrors.NewLoadError(path, fmt.Errorf("workbook has no sheets"))
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, perrors.NewLoadError(path, fmt.Errorf("sheet %q: %w", sheet, err))
	}
	if len(rows) == 0 {
		return nil, perrors.NewLoadError(path, fmt.Errorf("sheet %q is empty", sheet))
	}

	header := rows[0]
	body := rows[1:]
	// excelize trims trailing empty cells, so rows may be shorter than the header.
	for i, row := range body {
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			body[i] = padded
		}
	}

	opts.logger().Debug("read workbook sheet", "path", path, "sheet", sheet, "rows", len(body))
	return buildTable(header, body, opts)
}
