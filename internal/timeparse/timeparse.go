// Package timeparse turns user-supplied time expressions into timestamps.
//
// Accepts RFC 3339, zone-less date-time layouts, a date-only layout
// (2006-01-02), and natural-language phrases
// like "tomorrow" or "in 2 weeks" via olebedev/when.
package timeparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse resolves input relative to now, returning UTC.
func Parse(input string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	result, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", input, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("unrecognized time expression %q", input)
	}
	return result.Time.UTC(), nil
}
