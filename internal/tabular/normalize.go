package tabular

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeAnalytical coerces the canonical reporting-date column to dates
// (unparseable cells become null) and the canonical quantity column to
// integers (unparseable or missing become 0). Lossy coercion, never
// rejection: this transform cannot fail. The input dataset is not mutated.
func NormalizeAnalytical(ds *Dataset) *Dataset {
	cfg := Config()
	out := cloneDataset(ds)

	if col, ok := out.Column(cfg.Analytical.DateColumn); ok {
		for i, v := range col.Cells {
			if v.IsNull() {
				continue
			}
			if t, ok := parseDateValue(v); ok {
				col.Cells[i] = Date(t)
			} else {
				col.Cells[i] = Null()
			}
		}
	}

	if col, ok := out.Column(cfg.Analytical.QuantityColumn); ok {
		for i, v := range col.Cells {
			if n, ok := coerceInt(v); ok {
				col.Cells[i] = Number(float64(n))
			} else {
				col.Cells[i] = Number(0)
			}
		}
	}

	return out
}

// NormalizeConsumption keeps exactly the key and measure columns, failing
// with *SchemaMismatchError naming whichever are absent. The measure becomes
// its absolute numeric value; precision is preserved (unparseable cells
// become null).
func NormalizeConsumption(ds *Dataset) (*Dataset, error) {
	cfg := Config()
	required := []string{cfg.Consumption.KeyColumn, cfg.Consumption.MeasureColumn}

	missing := []string{}
	for _, name := range required {
		if _, ok := ds.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Missing: missing}
	}

	out := &Dataset{Columns: make([]Column, 0, len(required))}
	for _, name := range required {
		src, _ := ds.Column(name)
		cells := make([]Value, len(src.Cells))
		copy(cells, src.Cells)
		out.Columns = append(out.Columns, Column{Name: name, Cells: cells})
	}

	measure, _ := out.Column(cfg.Consumption.MeasureColumn)
	for i, v := range measure.Cells {
		if v.IsNull() {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			measure.Cells[i] = Number(math.Abs(f))
		} else {
			measure.Cells[i] = Null()
		}
	}

	return out, nil
}

func coerceFloat(v Value) (float64, bool) {
	switch v.Kind() {
	case KindNumber:
		f, _ := v.Number()
		return f, true
	case KindText:
		s, _ := v.Text()
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceInt(v Value) (int, bool) {
	f, ok := coerceFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func cloneDataset(ds *Dataset) *Dataset {
	out := &Dataset{Columns: make([]Column, len(ds.Columns))}
	for i := range ds.Columns {
		cells := make([]Value, len(ds.Columns[i].Cells))
		copy(cells, ds.Columns[i].Cells)
		out.Columns[i] = Column{Name: ds.Columns[i].Name, Cells: cells}
	}
	return out
}
