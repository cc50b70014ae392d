package tabular

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ColumnSchema is the persisted description of one ingested column.
type ColumnSchema struct {
	Name         string `json:"name"`
	OriginalType string `json:"original_dtype"`
	DetectedType string `json:"detected_type"`
	Nullable     bool   `json:"nullable"`
	UniqueCount  int    `json:"unique_count"`
	NullCount    int    `json:"null_count"`
	SampleValues []any  `json:"sample_values"`
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), // YYYY-MM-DD
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`), // DD/MM/YYYY
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`), // DD-MM-YYYY
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var booleanTokens = map[string]bool{
	"true": true, "false": true, "1": true, "0": true, "yes": true, "no": true,
}

// DetectSchema infers a semantic type and descriptive statistics per column.
// Pure and deterministic: the same dataset always yields the same entries.
func DetectSchema(ds *Dataset) []ColumnSchema {
	forced := Config().ForcedTypes
	out := make([]ColumnSchema, 0, len(ds.Columns))
	for i := range ds.Columns {
		col := &ds.Columns[i]
		detected, ok := forced[col.Name]
		if !ok {
			detected = detectColumnType(col)
		}
		out = append(out, ColumnSchema{
			Name:         col.Name,
			OriginalType: storageTypeLabel(col),
			DetectedType: detected,
			Nullable:     col.NullCount() > 0,
			UniqueCount:  uniqueCount(col),
			NullCount:    col.NullCount(),
			SampleValues: sampleValues(col, 5),
		})
	}
	return out
}

// detectColumnType applies the fixed precedence: boolean set, all-numeric,
// date patterns over the first 100 non-null values (>=80% match) or a fully
// date-parseable sample, else string.
func detectColumnType(col *Column) string {
	nonNull := col.NonNull()
	if len(nonNull) == 0 {
		return "string"
	}

	allBoolean := true
	for _, v := range nonNull {
		if !booleanTokens[strings.ToLower(strings.TrimSpace(v.Raw()))] {
			allBoolean = false
			break
		}
	}
	if allBoolean {
		return "boolean"
	}

	allNumeric := true
	for _, v := range nonNull {
		if !cellIsNumeric(v) {
			allNumeric = false
			break
		}
	}
	if allNumeric {
		return "number"
	}

	sample := nonNull
	if len(sample) > 100 {
		sample = sample[:100]
	}
	for _, pattern := range datePatterns {
		matches := 0
		for _, v := range sample {
			if pattern.MatchString(strings.TrimSpace(v.Raw())) {
				matches++
			}
		}
		if float64(matches)/float64(len(sample)) > 0.8 {
			return "date"
		}
	}
	allDates := true
	for _, v := range sample {
		if _, ok := parseDateValue(v); !ok {
			allDates = false
			break
		}
	}
	if allDates {
		return "date"
	}

	return "string"
}

func cellIsNumeric(v Value) bool {
	switch v.Kind() {
	case KindNumber:
		return true
	case KindText:
		s, _ := v.Text()
		_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return err == nil
	default:
		return false
	}
}

// parseDateValue coerces a cell into a date using the supported layouts.
func parseDateValue(v Value) (time.Time, bool) {
	switch v.Kind() {
	case KindDate:
		t, _ := v.Date()
		return t, true
	case KindText:
		s, _ := v.Text()
		s = strings.TrimSpace(s)
		if len(s) > 10 {
			// "2024-01-15 00:00:00" style exports: the day part is enough.
			if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
				return t, true
			}
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// storageTypeLabel describes how the column arrived, before semantic
// detection: the dominant variant kind, or "mixed".
func storageTypeLabel(col *Column) string {
	var label string
	for _, v := range col.Cells {
		if v.IsNull() {
			continue
		}
		k := v.Kind().String()
		if label == "" {
			label = k
			continue
		}
		if label != k {
			return "mixed"
		}
	}
	if label == "" {
		return "empty"
	}
	return label
}

func uniqueCount(col *Column) int {
	seen := make(map[string]bool)
	for _, v := range col.Cells {
		if v.IsNull() {
			continue
		}
		seen[v.Kind().String()+":"+v.Raw()] = true
	}
	return len(seen)
}

// sampleValues returns up to n representative non-null values coerced to
// JSON-safe scalars. Detected dates are emitted as ISO-8601 strings.
func sampleValues(col *Column, n int) []any {
	out := make([]any, 0, n)
	for _, v := range col.Cells {
		if v.IsNull() {
			continue
		}
		out = append(out, v.JSONValue())
		if len(out) == n {
			break
		}
	}
	return out
}
