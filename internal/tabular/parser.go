package tabular

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Parse reads a file into a Dataset. Unknown extensions fail with
// *UnsupportedFormatError, malformed content with *ParseError. The only side
// effect is reading the file.
func Parse(path string) (*Dataset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return parseCSV(path)
	case ".xlsx", ".xls":
		return parseXLSX(path)
	case ".json":
		return parseJSON(path)
	default:
		return nil, &UnsupportedFormatError{Ext: ext}
	}
}

// csvEncodings is the fixed attempt order for delimited text. The first
// decoding whose output also parses as CSV wins; a final plain attempt is the
// fallback so an unreadable file still yields a typed failure, never a hang
// or a partial dataset.
var csvEncodings = []encoding.Encoding{
	unicode.UTF8,
	unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM),
	charmap.ISO8859_1,
}

func parseCSV(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var lastErr error
	for _, enc := range csvEncodings {
		decoded, decErr := enc.NewDecoder().Bytes(raw)
		if decErr != nil {
			lastErr = decErr
			continue
		}
		content := string(decoded)
		// The UTF-8 decoder substitutes rather than fails; treat any
		// substitution or embedded NUL as a wrong-encoding signal.
		if strings.ContainsRune(content, '\ufffd') || strings.ContainsRune(content, 0) {
			lastErr = fmt.Errorf("decoded content not valid for encoding")
			continue
		}
		ds, csvErr := decodeCSV(content)
		if csvErr != nil {
			lastErr = csvErr
			continue
		}
		return ds, nil
	}
	// Fallback: take the bytes as-is.
	ds, csvErr := decodeCSV(string(raw))
	if csvErr != nil {
		if lastErr == nil {
			lastErr = csvErr
		}
		return nil, &ParseError{Path: path, Err: lastErr}
	}
	return ds, nil
}

func decodeCSV(content string) (*Dataset, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	return fromRows(rows[0], rows[1:])
}

func parseXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("sheet %q is empty", sheets[0])}
	}
	ds, err := fromRows(rows[0], rows[1:])
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return ds, nil
}

func parseJSON(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var objects []map[string]any
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	names := make([]string, 0)
	seen := make(map[string]bool)
	for _, obj := range objects {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}

	ds := &Dataset{Columns: make([]Column, len(names))}
	for i, name := range names {
		cells := make([]Value, len(objects))
		for r, obj := range objects {
			cells[r] = jsonCell(obj[name])
		}
		ds.Columns[i] = Column{Name: name, Cells: cells}
	}
	return ds, nil
}

func jsonCell(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case float64:
		return Number(t)
	case bool:
		return Bool(t)
	case string:
		if t == "" {
			return Null()
		}
		return Text(t)
	default:
		b, _ := json.Marshal(t)
		return Text(string(b))
	}
}

// fromRows builds a Dataset from a header row plus data rows. Headers are
// uniquified the way spreadsheet tooling does: blanks become "Unnamed: N",
// repeats get a ".N" suffix. Short rows are padded with nulls, long rows
// truncated to the header width.
func fromRows(header []string, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	names := make([]string, len(header))
	used := make(map[string]int)
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := used[name]; ok {
			// The suffixed candidate can itself collide with a literal
			// header (A, A.1, A), so walk the counter until it is free.
			base := name
			for {
				name = fmt.Sprintf("%s.%d", base, n)
				n++
				if _, taken := used[name]; !taken {
					break
				}
			}
			used[base] = n
		}
		used[name] = 1
		names[i] = name
	}

	ds := &Dataset{Columns: make([]Column, len(names))}
	for c, name := range names {
		cells := make([]Value, len(rows))
		for r, row := range rows {
			if c >= len(row) || strings.TrimSpace(row[c]) == "" {
				cells[r] = Null()
				continue
			}
			cells[r] = Text(row[c])
		}
		ds.Columns[c] = Column{Name: name, Cells: cells}
	}
	return ds, nil
}
