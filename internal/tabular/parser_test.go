package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseCSV(t *testing.T) {
	path := writeFile(t, "orders.csv", "Customer,Quantity\nAcme,5\nGlobex,\n")
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ds.RowCount() != 2 || ds.ColumnCount() != 2 {
		t.Fatalf("got %dx%d, want 2x2", ds.RowCount(), ds.ColumnCount())
	}
	qty, ok := ds.Column("Quantity")
	if !ok {
		t.Fatalf("Quantity column missing")
	}
	if !qty.Cells[1].IsNull() {
		t.Fatalf("blank cell should be null, got %v", qty.Cells[1].Raw())
	}
}

func TestParseCSVWithBOM(t *testing.T) {
	path := writeFile(t, "bom.csv", "\ufeffName,Value\na,1\n")
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := ds.Column("Name"); !ok {
		t.Fatalf("BOM should be stripped from first header, columns: %v", ds.Columns[0].Name)
	}
}

func TestParseCSVUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	raw, err := enc.Bytes([]byte("Name,Value\nutf,16\n"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "utf16.csv")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	col, ok := ds.Column("Name")
	if !ok {
		t.Fatalf("Name column missing")
	}
	if got := col.Cells[0].Raw(); got != "utf" {
		t.Fatalf("got %q, want utf", got)
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")
	_, err := Parse(path)
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("want UnsupportedFormatError, got %v", err)
	}
	if ufe.Ext != ".txt" {
		t.Fatalf("got ext %q", ufe.Ext)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	path := writeFile(t, "bad.json", "{not an array")
	_, err := Parse(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParseJSONObjects(t *testing.T) {
	path := writeFile(t, "rows.json", `[{"b":2,"a":"x"},{"a":"y","c":true}]`)
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ds.ColumnCount() != 3 {
		t.Fatalf("got %d columns, want 3", ds.ColumnCount())
	}
	// First object's sorted keys lead the ordering.
	if ds.Columns[0].Name != "a" || ds.Columns[1].Name != "b" || ds.Columns[2].Name != "c" {
		t.Fatalf("bad column order: %s %s %s", ds.Columns[0].Name, ds.Columns[1].Name, ds.Columns[2].Name)
	}
	b, _ := ds.Column("b")
	if !b.Cells[1].IsNull() {
		t.Fatalf("missing key should yield null")
	}
	if _, ok := b.Cells[0].Number(); !ok {
		t.Fatalf("json number should ingest as Number")
	}
}

func TestHeaderUniquification(t *testing.T) {
	path := writeFile(t, "dup.csv", "Name,,Name\n1,2,3\n")
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"Name", "Unnamed: 1", "Name.1"}
	for i, w := range want {
		if ds.Columns[i].Name != w {
			t.Fatalf("column %d = %q, want %q", i, ds.Columns[i].Name, w)
		}
	}
}

func TestHeaderUniquificationSuffixCollision(t *testing.T) {
	path := writeFile(t, "dupsuffix.csv", "A,A.1,A,A\n1,2,3,4\n")
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"A", "A.1", "A.2", "A.3"}
	for i, w := range want {
		if ds.Columns[i].Name != w {
			t.Fatalf("column %d = %q, want %q", i, ds.Columns[i].Name, w)
		}
	}
	seen := map[string]bool{}
	for _, c := range ds.Columns {
		if seen[c.Name] {
			t.Fatalf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
	}
}

func TestShortRowsPadded(t *testing.T) {
	path := writeFile(t, "ragged.csv", "A,B,C\n1,2\n")
	ds, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c, _ := ds.Column("C")
	if !c.Cells[0].IsNull() {
		t.Fatalf("short row should be null-padded")
	}
}
