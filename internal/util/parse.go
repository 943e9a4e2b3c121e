package util

import (
	"strconv"
	"time"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ClampLimit parses a page size and keeps it within [1, max]
func ClampLimit(s string, defaultValue, max int) int {
	limit := ParseInt(s, defaultValue)
	if limit <= 0 {
		return defaultValue
	}
	if limit > max {
		return max
	}
	return limit
}

// ParseTimeParam parses an RFC 3339 cursor. Empty input yields nil.
func ParseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
