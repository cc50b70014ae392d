package tabular

import (
	"fmt"
	"strings"
)

// ValidationResult reports structural defects. Errors invalidate the dataset;
// warnings never do.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	RowCount      int      `json:"row_count"`
	ColumnCount   int      `json:"column_count"`
	DuplicateRows int      `json:"duplicate_rows"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// Validate inspects a dataset without mutating it.
func Validate(ds *Dataset) ValidationResult {
	errors := []string{}
	warnings := []string{}

	dupCount := duplicateRowCount(ds)
	if dupCount > 0 {
		warnings = append(warnings, fmt.Sprintf("Found %d duplicate rows", dupCount))
	}

	emptyCols := []string{}
	for i := range ds.Columns {
		col := &ds.Columns[i]
		if len(col.Cells) > 0 && col.NullCount() == len(col.Cells) {
			emptyCols = append(emptyCols, col.Name)
		}
	}
	if len(emptyCols) > 0 {
		warnings = append(warnings, fmt.Sprintf("Empty columns: [%s]", strings.Join(emptyCols, ", ")))
	}

	for i := range ds.Columns {
		name := ds.Columns[i].Name
		if strings.TrimSpace(name) == "" {
			errors = append(errors, "Found column with empty name")
		}
		if strings.HasPrefix(name, "Unnamed") {
			warnings = append(warnings, fmt.Sprintf("Column '%s' may be auto-generated", name))
		}
	}

	return ValidationResult{
		Valid:         len(errors) == 0,
		RowCount:      ds.RowCount(),
		ColumnCount:   ds.ColumnCount(),
		DuplicateRows: dupCount,
		Errors:        errors,
		Warnings:      warnings,
	}
}

// duplicateRowCount counts rows whose values match an earlier row exactly
// across all columns.
func duplicateRowCount(ds *Dataset) int {
	if ds.ColumnCount() == 0 {
		return 0
	}
	seen := make(map[string]bool, ds.RowCount())
	dups := 0
	var sb strings.Builder
	for r := 0; r < ds.RowCount(); r++ {
		sb.Reset()
		for c := range ds.Columns {
			v := ds.Columns[c].Cells[r]
			sb.WriteString(v.Kind().String())
			sb.WriteByte(':')
			sb.WriteString(v.Raw())
			sb.WriteByte('\x1f')
		}
		key := sb.String()
		if seen[key] {
			dups++
			continue
		}
		seen[key] = true
	}
	return dups
}
