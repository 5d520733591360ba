package calendar

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestNormalizeImpactUnknownDefaultsToLow(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"High", "high"},
		{"Med", "medium"},
		{"Holiday", "holiday"},
		{"Low", "low"},
		{"", "low"},
		{"unexpected-marker", "low"},
	}
	for _, c := range cases {
		if got := string(normalizeImpact(c.raw)); got != c.want {
			t.Errorf("normalizeImpact(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestParseFFTimeAllDayAndTentative(t *testing.T) {
	if _, _, kind := parseFFTime("All Day"); kind != timeAllDay {
		t.Errorf("parseFFTime(All Day) kind = %v, want timeAllDay", kind)
	}
	if _, _, kind := parseFFTime("Tentative"); kind != timeTentative {
		t.Errorf("parseFFTime(Tentative) kind = %v, want timeTentative", kind)
	}
	if _, _, kind := parseFFTime(""); kind != timeUnknown {
		t.Errorf("parseFFTime(empty) kind = %v, want timeUnknown", kind)
	}
}

func TestConvertETToUTCAllDayLeavesAnchoringToCaller(t *testing.T) {
	_, kind, ok, err := convertETToUTC("Nov 25, 2025", "All Day", 2025)
	if err != nil {
		t.Fatalf("convertETToUTC returned error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an All Day time, caller anchors the day separately")
	}
	if kind != timeAllDay {
		t.Errorf("kind = %v, want timeAllDay", kind)
	}
}

func TestRowsToEventsAllDayAnchorsAtMidnightUTCOfETDay(t *testing.T) {
	s := &Scraper{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rows := []rawRow{
		{Date: "Nov 25, 2025", Time: "All Day", Currency: "USD", Event: "Bank Holiday", Impact: "Holiday"},
	}

	events := s.rowsToEvents(rows, 2025)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	loc, _ := time.LoadLocation(easternTZ)
	want := time.Date(2025, time.November, 25, 0, 0, 0, 0, loc).UTC()
	if !events[0].Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", events[0].Timestamp, want)
	}
	if events[0].Impact != "holiday" {
		t.Errorf("Impact = %q, want holiday", events[0].Impact)
	}
}

func TestParseFFDateDropsWeekdayAndYearSuffix(t *testing.T) {
	got, err := parseFFDate("Mon Nov 25", 2025)
	if err != nil {
		t.Fatalf("parseFFDate returned error: %v", err)
	}
	want := time.Date(2025, time.November, 25, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseFFDate(Mon Nov 25) = %v, want %v", got, want)
	}

	got2, err := parseFFDate("Nov 25, 2026", 2025)
	if err != nil {
		t.Fatalf("parseFFDate returned error: %v", err)
	}
	if got2.Year() != 2026 {
		t.Errorf("expected explicit year suffix to override default year, got %d", got2.Year())
	}
}
