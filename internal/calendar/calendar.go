// Package calendar implements the economic calendar scraper (C1): it
// drives a headless browser against a Forex-Factory-style calendar page and
// parses the rendered DOM into EconomicEvent rows.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

// Scraper fetches weeks/days of economic events from the calendar source.
//
// State machine per scrape_week call (spec §4.1):
//
//	Idle -> Navigating -> Loaded -> Parsing -> Done
//	Navigating -> BotChallenged -> Backoff -> Navigating  (bounded retries)
//	Parsing -> ParseError -> Done(no events, error)
type Scraper struct {
	baseURL    string
	headless   bool
	minDelay   time.Duration
	maxDelay   time.Duration
	maxRetries int
	logger     *slog.Logger
}

// New creates a Scraper. minDelay/maxDelay bound the inter-request jitter
// (default 1.5-2.0s); maxRetries bounds the bot-challenge/transient-error
// backoff loop for a single week (default 3).
func New(baseURL string, headless bool, minDelay, maxDelay time.Duration, maxRetries int, logger *slog.Logger) *Scraper {
	return &Scraper{
		baseURL:    baseURL,
		headless:   headless,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// rawRow is the shape extracted from the DOM via JavaScript, one per
// calendar row. Rows that share a date with the preceding row report an
// empty Date; the caller carries the last-seen date forward.
type rawRow struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Currency string `json:"currency"`
	Event    string `json:"event"`
	Impact   string `json:"impact"`
	Actual   string `json:"actual"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
}

const extractRowsJS = `
(function() {
	const rows = document.querySelectorAll('` + selectorRow + `');
	const results = [];
	rows.forEach(row => {
		const get = (sel) => {
			const el = row.querySelector(sel);
			return el ? el.textContent.trim() : '';
		};
		const event = get('` + selectorEvent + `');
		const currency = get('` + selectorCurrency + `');
		if (!event && !currency) return; // header/separator rows
		results.push({
			date: get('` + selectorDate + `'),
			time: get('` + selectorTime + `'),
			currency: currency,
			event: event,
			impact: get('` + selectorImpact + `'),
			actual: get('` + selectorActual + `'),
			forecast: get('` + selectorForecast + `'),
			previous: get('` + selectorPrevious + `'),
		});
	});
	return results;
})()
`

// ScrapeWeek returns the events for the week containing date, ordered by
// UTC timestamp ascending.
func (s *Scraper) ScrapeWeek(ctx context.Context, date time.Time) ([]model.EconomicEvent, error) {
	url := buildWeekURL(s.baseURL, date)
	rows, err := s.fetchRows(ctx, url)
	if err != nil {
		return nil, err
	}

	events := s.rowsToEvents(rows, date.Year())
	sortEventsByTimestamp(events)
	return events, nil
}

// ScrapeDay returns the events for a single calendar day (source timezone),
// derived by fetching that day's week and filtering to rows whose source
// date matches.
func (s *Scraper) ScrapeDay(ctx context.Context, date time.Time) ([]model.EconomicEvent, error) {
	url := buildWeekURL(s.baseURL, date)
	rows, err := s.fetchRows(ctx, url)
	if err != nil {
		return nil, err
	}

	var filtered []rawRow
	lastDate := ""
	for _, r := range rows {
		d := r.Date
		if d == "" {
			d = lastDate
		} else {
			lastDate = d
		}
		parsed, perr := parseFFDate(d, date.Year())
		if perr != nil {
			continue
		}
		if parsed.Month() == date.Month() && parsed.Day() == date.Day() {
			r.Date = d
			filtered = append(filtered, r)
		}
	}

	events := s.rowsToEvents(filtered, date.Year())
	sortEventsByTimestamp(events)
	return events, nil
}

// fetchRows drives the browser through Navigating -> Loaded -> Parsing,
// retrying on bot-challenge/transient failures with exponential backoff
// (Navigating -> BotChallenged -> Backoff -> Navigating).
func (s *Scraper) fetchRows(ctx context.Context, url string) ([]rawRow, error) {
	s.politeDelay()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			s.logger.Warn("retrying scrape after backoff", "attempt", attempt, "backoff", backoff, "url", url)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		rows, challenged, err := s.navigateAndExtract(ctx, url)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !challenged && !isTransient(err) {
			// Permanent failure: non-retriable per spec §4.1.
			return nil, fmt.Errorf("%w: %v", errs.ErrPermanentFetch, err)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", errs.ErrBotChallenged, s.maxRetries+1, lastErr)
}

func (s *Scraper) navigateAndExtract(ctx context.Context, url string) (rows []rawRow, botChallenged bool, err error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, 60*time.Second)
	defer timeoutCancel()

	var pageText string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Evaluate(`document.body ? document.body.innerText.slice(0, 2000) : ''`, &pageText),
	); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrScrapeTimeout, err)
	}

	if isBotChallenge(pageText) {
		return nil, true, errs.ErrBotChallenged
	}

	if err := chromedp.Run(browserCtx,
		chromedp.WaitVisible(waitForTable, chromedp.ByQuery),
	); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrParseFailure, err)
	}

	if err := chromedp.Run(browserCtx, chromedp.Evaluate(extractRowsJS, &rows)); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrParseFailure, err)
	}

	return rows, false, nil
}

func isBotChallenge(pageText string) bool {
	lower := strings.ToLower(pageText)
	for _, marker := range botChallengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isTransient(err error) bool {
	// Timeouts and parse failures (flaky renders) are retried; permanent
	// fetch errors are surfaced to the caller separately.
	return err == errs.ErrScrapeTimeout || strings.Contains(err.Error(), "timed out") ||
		strings.Contains(err.Error(), "structure could not be parsed")
}

// politeDelay enforces the minimum inter-request delay plus jitter.
func (s *Scraper) politeDelay() {
	span := s.maxDelay - s.minDelay
	delay := s.minDelay
	if span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	time.Sleep(delay)
}

// rowsToEvents converts raw DOM rows into EconomicEvent values, carrying
// the last-seen date forward across rows that omit their own date cell,
// normalizing impact to the canonical set, and converting ET to UTC.
func (s *Scraper) rowsToEvents(rows []rawRow, year int) []model.EconomicEvent {
	events := make([]model.EconomicEvent, 0, len(rows))
	lastDate := ""

	for _, r := range rows {
		dateStr := r.Date
		if dateStr == "" {
			dateStr = lastDate
		} else {
			lastDate = dateStr
		}
		if r.Event == "" {
			continue
		}

		ts, kind, ok, err := convertETToUTC(dateStr, r.Time, year)
		isTentative := false
		if err != nil {
			s.logger.Warn("skipping row with unparseable date", "date", dateStr, "error", err)
			continue
		}
		if !ok {
			// All Day / Tentative / unknown: day-anchor at 00:00 UTC-of-ET
			// calendar day per spec §4.1 (B2), with Tentative additionally
			// flagged rather than silently merged with All Day.
			d, derr := parseFFDate(dateStr, year)
			if derr != nil {
				s.logger.Warn("skipping row with unparseable date", "date", dateStr, "error", derr)
				continue
			}
			loc, _ := time.LoadLocation(easternTZ)
			ts = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).UTC()
			isTentative = kind == timeTentative
		}

		events = append(events, model.EconomicEvent{
			Timestamp:   ts,
			Currency:    strings.TrimSpace(r.Currency),
			EventName:   truncate(strings.TrimSpace(r.Event), 255),
			Impact:      normalizeImpact(r.Impact),
			IsTentative: isTentative,
			Actual:      nullableString(r.Actual),
			Forecast:    nullableString(r.Forecast),
			Previous:    nullableString(r.Previous),
		})
	}

	return events
}

// normalizeImpact maps the scraped impact marker to the canonical set,
// defaulting unknown markers to low (spec §4.1, B1).
func normalizeImpact(raw string) model.Impact {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "red":
		return model.ImpactHigh
	case "medium", "med", "orange", "ora":
		return model.ImpactMedium
	case "holiday", "gray", "grey":
		return model.ImpactHoliday
	case "low", "yellow", "yel":
		return model.ImpactLow
	default:
		return model.ImpactLow
	}
}

func nullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func sortEventsByTimestamp(events []model.EconomicEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
