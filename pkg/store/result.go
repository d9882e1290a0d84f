package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Row maps column name to value. Values are string, int64, float64, []byte or nil.
type Row map[string]any

// ResultSet is a fully materialized query result.
type ResultSet struct {
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

func (rs *ResultSet) Empty() bool {
	return rs.Len() == 0
}

// Records renders the rows as a compact JSON array of objects with keys in
// column order. transform, when non-nil, is applied to every value first.
// Binary values are replaced by a short placeholder and non-finite floats
// are rendered as strings. HTML characters are not escaped.
func (rs *ResultSet) Records(transform func(any) any) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rs.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range rs.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := encodeJSON(col)
			if err != nil {
				return "", fmt.Errorf("failed to encode column %q: %w", col, err)
			}
			v := row[col]
			if b, ok := v.([]byte); ok {
				v = fmt.Sprintf("<binary %d bytes>", len(b))
			}
			if transform != nil {
				v = transform(v)
			}
			if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
				v = strconv.FormatFloat(f, 'g', -1, 64)
			}
			val, err := encodeJSON(v)
			if err != nil {
				return "", fmt.Errorf("failed to encode value of %q: %w", col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}
