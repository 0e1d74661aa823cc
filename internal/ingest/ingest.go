// Package ingest reads uploaded spreadsheet files into raw row batches,
// header row included. Column interpretation happens downstream; this
// package only deals with file formats.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadFile reads a .csv or .xlsx file into raw rows. The first row is
// expected to be the header but that is the caller's concern.
func ReadFile(path string) ([][]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func readCSV(path string) ([][]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	// Exports from spreadsheet tools often have ragged rows.
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return stringRows(all), nil
}

func readXLSX(path string) ([][]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("no sheets in %s", path)
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return stringRows(all), nil
}

func stringRows(in [][]string) [][]any {
	rows := make([][]any, len(in))
	for i, row := range in {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		rows[i] = cells
	}
	return rows
}
