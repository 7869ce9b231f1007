package prefstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/clinextract"
)

const xlsxSheetName = "Preferences"

var xlsxHeader = []string{"original_term", "preferred", "confidence", "last_updated"}

// ImportXLSX reads a workbook of the shape written by ExportXLSX and bulk
// upserts its rows for doctorID, walking rows with f.GetRows over one
// structured sheet of known columns rather than free-text extraction.
func ImportXLSX(ctx context.Context, store Store, doctorID, path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("prefstore: opening XLSX: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(xlsxSheetName)
	if err != nil {
		return 0, fmt.Errorf("prefstore: reading sheet %q: %w", xlsxSheetName, err)
	}
	if len(rows) < 2 {
		return 0, nil
	}

	entries := make(map[string]clinextract.PreferenceEntry)
	for _, row := range rows[1:] {
		if len(row) < 2 || row[0] == "" {
			continue
		}
		entry := clinextract.PreferenceEntry{Preferred: row[1], LastUpdated: time.Now()}
		if len(row) > 2 && row[2] != "" {
			if conf, err := strconv.ParseFloat(row[2], 64); err == nil {
				entry.Confidence = conf
			}
		}
		if len(row) > 3 && row[3] != "" {
			if ts, err := time.Parse(time.RFC3339, row[3]); err == nil {
				entry.LastUpdated = ts
			}
		}
		entries[row[0]] = entry
	}

	if err := store.BulkPut(ctx, doctorID, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ExportXLSX writes a doctor's current preference snapshot to path as a
// single-sheet workbook matching ImportXLSX's expected shape.
func ExportXLSX(ctx context.Context, store Store, doctorID, path string) error {
	prefs, err := store.Get(ctx, doctorID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName(f.GetSheetName(0), xlsxSheetName)

	for col, h := range xlsxHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(xlsxSheetName, cell, h)
	}

	row := 2
	for term, entry := range prefs.Entries {
		values := []any{term, entry.Preferred, entry.Confidence, entry.LastUpdated.Format(time.RFC3339)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(xlsxSheetName, cell, v)
		}
		row++
	}

	return f.SaveAs(path)
}
