package data

import "github.com/quantgate/qmt-gateway/internal/qmt"

// Row is one transposed record: the timestamp plus one value per field.
type Row map[string]any

// Transpose turns the vendor's column table (fields × timestamps) into
// a row list. Numeric values widen to float64, counts and flags to
// int64.
func Transpose(b qmt.ColumnBlock) []Row {
	rows := make([]Row, len(b.Times))
	for i, t := range b.Times {
		row := Row{"time": t}
		for field, col := range b.Columns {
			if i < len(col) {
				row[field] = widen(col[i])
			}
		}
		rows[i] = row
	}
	return rows
}

// widen normalises vendor scalar types to float64 / int64 / string.
func widen(v any) any {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}
