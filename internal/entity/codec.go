package entity

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentctx/platform/internal/store"
)

// decodeJSON unmarshals a TEXT/JSON store.Row field into dst. A missing,
// nil, or malformed field is treated as the type's zero value with a
// warning, never a crash.
func decodeJSON(row store.Row, field string, dst any) {
	raw, ok := row[field]
	if !ok || raw == nil {
		return
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		slog.Warn("entity: malformed JSON field, treating as empty", "field", field, "error", err)
	}
}

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func stringOr(row store.Row, field string) string {
	if v, ok := row[field]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolOr(row store.Row, field string) bool {
	if v, ok := row[field]; ok && v != nil {
		switch vv := v.(type) {
		case bool:
			return vv
		case int64:
			return vv != 0
		case string:
			return vv == "true" || vv == "1"
		}
	}
	return false
}

func intOr(row store.Row, field string) int {
	if v, ok := row[field]; ok && v != nil {
		switch vv := v.(type) {
		case int64:
			return int(vv)
		case int:
			return vv
		case float64:
			return int(vv)
		}
	}
	return 0
}

func floatOr(row store.Row, field string) float64 {
	if v, ok := row[field]; ok && v != nil {
		switch vv := v.(type) {
		case float64:
			return vv
		case float32:
			return float64(vv)
		case int64:
			return float64(vv)
		}
	}
	return 0
}

func timeOr(row store.Row, field string) time.Time {
	if v, ok := row[field]; ok && v != nil {
		switch vv := v.(type) {
		case time.Time:
			return vv
		case string:
			if t, err := time.Parse(time.RFC3339, vv); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func timePtrOr(row store.Row, field string) *time.Time {
	t := timeOr(row, field)
	if t.IsZero() {
		return nil
	}
	return &t
}

func stringPtrOr(row store.Row, field string) *string {
	if v, ok := row[field]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

func encodeVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return encodeJSON(v)
}

func decodeVector(row store.Row, field string) []float32 {
	var out []float32
	decodeJSON(row, field, &out)
	return out
}
