package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"github.com/shopspring/decimal"
)

// Documents come back from the store as loose key-value maps. Everything the
// engine reads goes through the typed conversions in this file, exactly once,
// so timestamp and amount normalization never leaks into call sites.

func recString(rec store.Record, key string) string {
	v, _ := rec[key].(string)
	return v
}

func recBool(rec store.Record, key string) bool {
	v, _ := rec[key].(bool)
	return v
}

func recDecimal(rec store.Record, key string) decimal.Decimal {
	switch v := rec[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err == nil {
			return d
		}
	case decimal.Decimal:
		return v
	}
	return decimal.Zero
}

// recTime accepts the shapes different store backends produce for the same
// document: native time values, RFC3339 strings and unix-millisecond numbers.
func recTime(rec store.Record, key string) time.Time {
	switch v := rec[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err == nil {
			return t
		}
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	case int64:
		return time.UnixMilli(v).UTC()
	}
	return time.Time{}
}

func recStringSlice(rec store.Record, key string) []string {
	switch v := rec[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func recRecordSlice(rec store.Record, key string) []store.Record {
	switch v := rec[key].(type) {
	case []store.Record:
		return v
	case []interface{}:
		out := make([]store.Record, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, store.Record(m))
			}
		}
		return out
	}
	return nil
}

// timeValue stores timestamps as RFC3339 UTC strings so date-range filters
// compare correctly in every backend.
func timeValue(t time.Time) interface{} {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
