package silver

import (
	"strconv"
	"time"
)

// timeLayouts covers the date formats hub'eau endpoints mix across
// themes: plain dates, naive datetimes, and RFC3339 with an offset.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) *float64 {
	switch value := v.(type) {
	case float64:
		return &value
	case string:
		if value == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return &f
		}
	}
	return nil
}

func toStringPtr(v any) *string {
	if s, ok := v.(string); ok && s != "" {
		return &s
	}
	return nil
}

// firstString returns the first non-empty string value found in record
// across keys, in order — mirroring the source pipeline's fallback
// field chains (a hub'eau endpoint rarely uses the same field name
// twice across its API versions).
func firstString(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := record[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first present, non-nil value across keys.
func firstValue(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
