// Package record holds the row type passed between extractor, transformer and
// writers.
package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record maps column name to value. Parsed cells are nil, string or float64;
// derived columns add int64 and bool.
type Record map[string]any

// nulls are cell texts read as missing, matching what spreadsheet/csv tools
// treat as NA.
var nulls = map[string]bool{"": true, "NA": true, "N/A": true, "NaN": true, "nan": true, "null": true, "NULL": true}

// IsNull reports whether a raw cell is a missing value.
func IsNull(raw string) bool { return nulls[strings.TrimSpace(raw)] }

// Opaque reports whether the column keeps its raw text (codes and geoids
// carry leading zeros).
func Opaque(name string) bool {
	return strings.HasSuffix(name, "_code") || strings.HasSuffix(name, "_geoid")
}

// Parse types a raw cell for the named column. Every numeric cell of a
// non-opaque column is a float64, so a column keeps one type across rows.
// Non-finite literals such as "Inf" stay text.
func Parse(name, raw string) any {
	if IsNull(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	if Opaque(name) {
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil || math.IsInf(f, 0):
		return s
	case math.IsNaN(f):
		return nil
	}
	return f
}

func parseFinite(name, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not numeric", name, s)
	}
	return f, nil
}

// Present reports whether the column exists with a non-null value.
func (r Record) Present(name string) bool {
	v, ok := r[name]
	if !ok || v == nil {
		return false
	}
	if f, isFloat := v.(float64); isFloat && math.IsNaN(f) {
		return false
	}
	return true
}

// Float returns the column as a float64.
func (r Record) Float(name string) (float64, error) {
	switch v := r[name].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return parseFinite(name, v)
	default:
		return 0, fmt.Errorf("%s: unexpected %T", name, v)
	}
}

// Int returns the column as an int64. Floats are truncated toward zero.
func (r Record) Int(name string) (int64, error) {
	switch v := r[name].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%s: %v is not an integer", name, v)
		}
		return int64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := parseFinite(name, s)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("%s: unexpected %T", name, v)
	}
}

// String returns the column's text, "" when absent.
func (r Record) String(name string) string {
	switch v := r[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
