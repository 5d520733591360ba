package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Eastern is the Forex Factory calendar's fixed source timezone. Conversion
// to UTC is DST-aware; ambiguous fall-back hours resolve to the first
// (pre-shift) occurrence per spec §4.1, which is also time.LoadLocation's
// default behavior for time.Date.
const easternTZ = "America/New_York"

var monthAbbrevs = []string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

var clockTimePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(am|pm)$`)
var yearSuffixPattern = regexp.MustCompile(`,\s*(\d{4})$`)

// timeKind distinguishes a parsed clock time from the scraper's special
// sentinel values.
type timeKind int

const (
	timeClock timeKind = iota
	timeAllDay
	timeTentative
	timeUnknown
)

// parseFFTime parses a Forex Factory time cell, mirroring parse_ff_time.
func parseFFTime(raw string) (hour, minute int, kind timeKind) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return 0, 0, timeUnknown
	case "tentative":
		return 0, 0, timeTentative
	case "all day":
		return 0, 0, timeAllDay
	}

	m := clockTimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, timeUnknown
	}

	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	period := m[3]

	if period == "am" {
		if h == 12 {
			h = 0
		}
	} else {
		if h != 12 {
			h += 12
		}
	}
	return h, min, timeClock
}

// parseFFDate parses a Forex Factory date cell like "Mon Nov 25" or
// "Nov 25, 2025", mirroring parse_ff_date. year is used when the date
// string carries no year of its own.
func parseFFDate(raw string, year int) (time.Time, error) {
	s := strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")

	if m := yearSuffixPattern.FindStringSubmatch(s); m != nil {
		y, err := strconv.Atoi(m[1])
		if err == nil {
			year = y
		}
		s = strings.TrimSpace(s[:len(s)-len(m[0])])
	}

	parts := strings.Fields(s)
	switch len(parts) {
	case 3:
		parts = parts[1:] // drop weekday abbreviation
	case 2:
		// month day, as-is
	default:
		return time.Time{}, fmt.Errorf("calendar: cannot parse date string %q", raw)
	}

	monthStr, dayStr := parts[0], parts[1]
	monthIdx := -1
	lowered := strings.ToLower(monthStr)
	if len(lowered) >= 3 {
		lowered = lowered[:3]
	}
	for i, abbr := range monthAbbrevs {
		if abbr == lowered {
			monthIdx = i
			break
		}
	}
	if monthIdx == -1 {
		return time.Time{}, fmt.Errorf("calendar: unknown month abbreviation %q", monthStr)
	}

	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid day value %q", dayStr)
	}

	return time.Date(year, time.Month(monthIdx+1), day, 0, 0, 0, 0, time.UTC), nil
}

// convertETToUTC converts a Forex Factory (date, time) pair from Eastern
// time to UTC. It returns ok=false for the special sentinel time values
// (Tentative, All Day, empty, unparseable) — callers handle those
// separately per spec §4.1.
func convertETToUTC(dateStr, timeStr string, year int) (t time.Time, kind timeKind, ok bool, err error) {
	hour, minute, k := parseFFTime(timeStr)
	if k != timeClock {
		return time.Time{}, k, false, nil
	}

	d, err := parseFFDate(dateStr, year)
	if err != nil {
		return time.Time{}, k, false, err
	}

	loc, err := time.LoadLocation(easternTZ)
	if err != nil {
		return time.Time{}, k, false, fmt.Errorf("calendar: loading %s: %w", easternTZ, err)
	}

	et := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
	return et.UTC(), timeClock, true, nil
}

// buildWeekURL builds the week-anchored calendar URL for targetDate,
// mirroring build_week_url.
func buildWeekURL(baseURL string, targetDate time.Time) string {
	abbrev := monthAbbrevs[targetDate.Month()-1]
	return fmt.Sprintf("%s?week=%s%d.%d", baseURL, abbrev, targetDate.Day(), targetDate.Year())
}
