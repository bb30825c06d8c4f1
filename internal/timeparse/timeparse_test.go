package timeparse

import (
	"testing"
	"time"
)

func TestParseRFC3339(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	got, err := Parse("2026-08-15T12:30:00Z", now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 15, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDateOnly(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	got, err := Parse("2026-08-15", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2026 || got.Month() != 8 || got.Day() != 15 {
		t.Errorf("got %v", got)
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	got, err := Parse("tomorrow", now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.After(now) {
		t.Errorf("tomorrow should be after now, got %v", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	now := time.Now()
	for _, bad := range []string{"", "   ", "florp"} {
		if _, err := Parse(bad, now); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}
