package core

// workbook.go loads an uploaded Excel workbook into a Table via excelize.
//
// The first row of the selected sheet declares the column names; every
// following row becomes one data row, padded or truncated to exactly one
// cell per declared column. Cell values are normalized through
// NormalizeCell so that output is deterministic across hosts.

import (
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"
)

// Table is the in-memory form of a parsed worksheet: an ordered list of
// column names plus rows of normalized cell strings. Column names are kept
// exactly as declared in the source; they are not required to be unique or
// valid element names.
type Table struct {
	Columns []string
	Rows    [][]string
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// ReadWorkbook parses the workbook at path into a Table.
//
// The sheet argument selects a worksheet by name; empty selects the first
// sheet. Returns a FormatError when the file is not a parseable workbook,
// and an InputError when the requested sheet does not exist or when the
// sheet holds zero data rows (the latter wrapping ErrNoDataRows).
func ReadWorkbook(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Err: fmt.Errorf("workbook has no sheets")}
	}

	name := sheet
	if name == "" {
		name = sheets[0]
	} else if !slices.Contains(sheets, name) {
		// The caller picked the sheet, so a bad name is their mistake to
		// fix, not a missing resource.
		return nil, NewInputError("worksheet not found: %s", name)
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("read sheet %q: %w", name, err)}
	}

	if len(rows) < 2 {
		return nil, &InputError{Err: ErrNoDataRows}
	}

	columns := rows[0]
	if len(columns) == 0 {
		return nil, &InputError{Err: ErrNoDataRows}
	}

	table := &Table{
		Columns: columns,
		Rows:    make([][]string, 0, len(rows)-1),
	}

	for _, raw := range rows[1:] {
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(raw) {
				row[i] = NormalizeCell(raw[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}
