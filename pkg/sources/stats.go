package sources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/axiopea/mapevents/pkg/common/models"
)

// Stats accumulates per-fetch counters while an adapter walks raw items.
type Stats struct {
	Scanned  int
	Accepted int
	Skips    models.SkipBreakdown
}

func (s *Stats) Skipped() int { return s.Skips.Total() }

// pickString returns the first non-empty string among the given keys.
// Scraper payloads use inconsistent field names between actor versions.
func pickString(item map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}

// pickNumber returns the first numeric value among the given keys.
func pickNumber(item map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			switch t := v.(type) {
			case float64:
				return t, true
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

// pickMap returns the first object value among the given keys.
func pickMap(item map[string]interface{}, keys ...string) map[string]interface{} {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if m, ok := v.(map[string]interface{}); ok {
				return m
			}
		}
	}
	return nil
}

// asTime parses the timestamp shapes scraper payloads carry: RFC 3339,
// "2006-01-02 15:04:05", a bare date, or a unix-seconds number.
func asTime(v interface{}, loc *time.Location) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if layout == time.RFC3339 {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts, nil
				}
				continue
			}
			if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
				return ts, nil
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).In(loc), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	case float64:
		return time.Unix(int64(t), 0).In(loc), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fixed6(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
