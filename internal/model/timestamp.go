package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The backend mixes timestamp encodings: epoch seconds, epoch milliseconds,
// numeric strings of either, ISO date-time strings, and already-parsed
// dates. Every ingress path (history load and live events) funnels through
// NormalizeTimestamp so the thread sort order sees one representation.

// secondsMillisThreshold separates epoch-seconds from epoch-millis values.
// Anything below 10^12 is read as seconds (that bound is not crossed by
// second-precision clocks until the year 33658).
const secondsMillisThreshold = int64(1e12)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp converts any timestamp shape the backend emits into
// epoch milliseconds. Invalid or zero inputs fall back to the current time
// rather than corrupting the sort order.
func NormalizeTimestamp(v any) int64 {
	return normalizeTimestamp(v, time.Now())
}

func normalizeTimestamp(v any, now time.Time) int64 {
	switch t := v.(type) {
	case nil:
		return now.UnixMilli()
	case int64:
		return normalizeEpoch(t, now)
	case int:
		return normalizeEpoch(int64(t), now)
	case float64:
		return normalizeEpoch(int64(t), now)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return normalizeEpoch(n, now)
		}
		if f, err := t.Float64(); err == nil {
			return normalizeEpoch(int64(f), now)
		}
		return now.UnixMilli()
	case time.Time:
		if t.IsZero() {
			return now.UnixMilli()
		}
		return t.UnixMilli()
	case string:
		return normalizeString(t, now)
	default:
		return now.UnixMilli()
	}
}

func normalizeEpoch(n int64, now time.Time) int64 {
	if n <= 0 {
		return now.UnixMilli()
	}
	if n < secondsMillisThreshold {
		return n * 1000
	}
	return n
}

func normalizeString(s string, now time.Time) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.UnixMilli()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return normalizeEpoch(n, now)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return normalizeEpoch(int64(f), now)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.IsZero() {
				return now.UnixMilli()
			}
			return t.UnixMilli()
		}
	}
	return now.UnixMilli()
}
