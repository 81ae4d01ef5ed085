// ABOUTME: Column-typed coercion of row values for writes and normalisation for reads
// ABOUTME: Every backend runs rows through these so they all return identical shapes
package db

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CheckRow rejects keys that are not columns of the table. The id key is allowed.
func (t *TableDef) CheckRow(row Row) error {
	for key := range row {
		if key == "id" {
			continue
		}
		if _, ok := t.index[key]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, key)
		}
	}
	return nil
}

// Coerce validates a row and converts each value to its column type.
// JSON columns hold decoded values; the SQL backends encode them on bind.
func (t *TableDef) Coerce(row Row) (Row, error) {
	if err := t.CheckRow(row); err != nil {
		return nil, err
	}

	out := make(Row, len(row))
	for key, value := range row {
		colType := TypeInt
		if key != "id" {
			col, _ := t.Column(key)
			colType = col.Type
		}

		v, err := coerceValue(colType, value)
		if err != nil {
			return nil, fmt.Errorf("%w for %s.%s: %v", ErrInvalidValue, t.Name, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// Normalize fills every column of the table and converts stored values to
// their Go representation: int64, float64, bool, string, or decoded JSON.
func (t *TableDef) Normalize(row Row) Row {
	out := make(Row, len(t.Columns)+1)
	out["id"] = normalizeValue(TypeInt, row["id"])
	for _, col := range t.Columns {
		out[col.Name] = normalizeValue(col.Type, row[col.Name])
	}
	return out
}

// WithDefaults returns a copy of row with schema defaults for absent columns.
func (t *TableDef) WithDefaults(row Row) Row {
	out := make(Row, len(t.Columns)+1)
	for k, v := range row {
		out[k] = v
	}
	for _, col := range t.Columns {
		if _, ok := out[col.Name]; ok {
			continue
		}
		out[col.Name] = col.defaultValue()
	}
	return out
}

func (c Column) defaultValue() interface{} {
	if c.Default == nil {
		return nil
	}
	if c.Type == TypeJSON {
		s, _ := c.Default.(string)
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
		return nil
	}
	return c.Default
}

func coerceValue(colType ColumnType, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch colType {
	case TypeInt:
		return toInt(value)
	case TypeReal:
		return toFloat(value)
	case TypeBool:
		return toBool(value)
	case TypeText:
		return toText(value), nil
	case TypeJSON:
		return toJSON(value)
	}
	return value, nil
}

func normalizeValue(colType ColumnType, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	switch colType {
	case TypeJSON:
		if s, ok := value.(string); ok {
			if strings.TrimSpace(s) == "" {
				return nil
			}
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return s
			}
			return decoded
		}
		v, err := toJSON(value)
		if err != nil {
			return value
		}
		return v
	default:
		v, err := coerceValue(colType, value)
		if err != nil {
			return value
		}
		return v
	}
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return toInt(f)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot use %T as integer", value)
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return 0, fmt.Errorf("cannot use %T as number", value)
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case json.Number:
		return v.String() != "0", nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	}
	return false, fmt.Errorf("cannot use %T as boolean", value)
}

func toText(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case json.Number:
		return v.String()
	}
	return fmt.Sprint(value)
}

// toJSON canonicalises a value by round-tripping it through encoding/json,
// so json.Number and typed slices become plain decoded values.
func toJSON(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded, nil
		}
		return s, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// encodeJSON renders a decoded JSON column value as stored text.
func encodeJSON(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
