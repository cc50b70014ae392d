package tabular

import (
	"strconv"
	"time"
)

// Kind enumerates the closed set of cell value variants.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is one nullable cell. All coercions between variants are explicit;
// there is no implicit stringly-typed fallback.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	date time.Time
}

func Null() Value            { return Value{kind: KindNull} }
func Text(s string) Value    { return Value{kind: KindText, text: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Date() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.date, true
}

// Raw returns the value as a string for display/comparison purposes.
func (v Value) Raw() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.date.Format("2006-01-02")
	default:
		return ""
	}
}

// JSONValue coerces the cell to a JSON-safe scalar: numbers stay native,
// dates become ISO-8601 strings, null becomes nil.
func (v Value) JSONValue() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.date.Format("2006-01-02")
	default:
		return nil
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return true
	}
}

type Column struct {
	Name  string
	Cells []Value
}

// NonNull returns the column's non-null cells in order.
func (c *Column) NonNull() []Value {
	out := make([]Value, 0, len(c.Cells))
	for _, v := range c.Cells {
		if !v.IsNull() {
			out = append(out, v)
		}
	}
	return out
}

func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Cells {
		if v.IsNull() {
			n++
		}
	}
	return n
}

// Dataset is an ordered set of equally sized named columns.
type Dataset struct {
	Columns []Column
}

func (d *Dataset) RowCount() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Cells)
}

func (d *Dataset) ColumnCount() int { return len(d.Columns) }

func (d *Dataset) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// Row materializes row i across all columns.
func (d *Dataset) Row(i int) []Value {
	out := make([]Value, len(d.Columns))
	for c := range d.Columns {
		out[c] = d.Columns[c].Cells[i]
	}
	return out
}
