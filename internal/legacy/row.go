package legacy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Row is one dumped legacy row keyed by column name.
//
// Values are whatever the SQLite driver produced on export (int64, float64,
// string, nil) or, after a round trip through a backup file, json.Number,
// string, bool and nil.
type Row map[string]any

// Has reports whether col is present and not NULL.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the column as text. NULL and missing columns are "".
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return cast.ToString(v)
}

// Float returns the column as a float. NULL and missing columns are 0.
func (r Row) Float(col string) (float64, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, nil
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return f, nil
}

// Int returns the column as an integer. NULL and missing columns are 0.
func (r Row) Int(col string) (int64, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", col, err)
		}
		return int64(f), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, nil
		}
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return i, nil
}

// Bool returns the column as a boolean. SQLite stores booleans as 0/1.
func (r Row) Bool(col string) (bool, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return false, nil
	}
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("column %s: %w", col, err)
	}
	return b, nil
}

// Time parses the column as a date or timestamp in UTC. The zero time is
// returned for NULL and missing columns.
func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %w", col, err)
	}
	return t.UTC(), nil
}
