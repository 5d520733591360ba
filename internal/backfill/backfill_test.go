package backfill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newsctl/newsctl/internal/model"
)

type fakeScraper struct {
	calls           []time.Time
	failWeeks       map[string]int // week key -> remaining failures before success
	failPermanently map[string]bool
}

func weekKey(t time.Time) string { return t.Format("2006-01-02") }

func (f *fakeScraper) ScrapeWeek(ctx context.Context, date time.Time) ([]model.EconomicEvent, error) {
	f.calls = append(f.calls, date)
	key := weekKey(date)
	if f.failPermanently[key] {
		return nil, errTransient
	}
	if remaining, ok := f.failWeeks[key]; ok && remaining > 0 {
		f.failWeeks[key]--
		return nil, errTransient
	}
	return []model.EconomicEvent{{EventName: "test event", Timestamp: date}}, nil
}

type fakeStore struct {
	upserted [][]model.EconomicEvent
}

func (f *fakeStore) UpsertEvents(ctx context.Context, events []model.EconomicEvent) error {
	f.upserted = append(f.upserted, events)
	return nil
}

var errTransient = errors.New("transient scrape failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDriverRunProcessesEachWeekOnce(t *testing.T) {
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "checkpoint.json")

	scraper := &fakeScraper{failWeeks: map[string]int{}, failPermanently: map[string]bool{}}
	store := &fakeStore{}

	driver := New(scraper, store, checkpointPath, 3, 0, discardLogger())

	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)

	checkpoint, err := driver.Run(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(scraper.calls) != 3 {
		t.Errorf("expected 3 weeks scraped, got %d", len(scraper.calls))
	}
	if len(checkpoint.FailedWeeks) != 0 {
		t.Errorf("expected no failed weeks, got %v", checkpoint.FailedWeeks)
	}
	if checkpoint.LastCompletedWeekAnchor == nil || !checkpoint.LastCompletedWeekAnchor.Equal(weekAnchor(end)) {
		t.Errorf("expected last completed week anchor = %v, got %v", weekAnchor(end), checkpoint.LastCompletedWeekAnchor)
	}
}

func TestDriverResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "checkpoint.json")

	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	mid := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)

	scraper1 := &fakeScraper{failWeeks: map[string]int{}, failPermanently: map[string]bool{}}
	store1 := &fakeStore{}
	driver1 := New(scraper1, store1, checkpointPath, 3, 0, discardLogger())
	if _, err := driver1.Run(context.Background(), start, mid); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	scraper2 := &fakeScraper{failWeeks: map[string]int{}, failPermanently: map[string]bool{}}
	store2 := &fakeStore{}
	driver2 := New(scraper2, store2, checkpointPath, 3, 0, discardLogger())
	if _, err := driver2.Run(context.Background(), start, end); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(scraper2.calls) != 1 {
		t.Errorf("expected resume to scrape only the new week, got %d calls: %v", len(scraper2.calls), scraper2.calls)
	}
}

func TestDriverRecordsFailedWeekAndContinues(t *testing.T) {
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "checkpoint.json")

	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	scraper := &fakeScraper{
		failWeeks:       map[string]int{},
		failPermanently: map[string]bool{weekKey(start): true},
	}
	store := &fakeStore{}
	driver := New(scraper, store, checkpointPath, 1, 0, discardLogger())

	checkpoint, err := driver.Run(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(checkpoint.FailedWeeks) != 1 {
		t.Fatalf("expected 1 failed week, got %v", checkpoint.FailedWeeks)
	}
	if !checkpoint.FailedWeeks[0].Equal(weekAnchor(start)) {
		t.Errorf("failed week = %v, want %v", checkpoint.FailedWeeks[0], weekAnchor(start))
	}
	if len(store.upserted) != 1 {
		t.Errorf("expected the second week's events to still be stored, got %d upsert calls", len(store.upserted))
	}
}

func TestCheckpointWrittenAtomically(t *testing.T) {
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "checkpoint.json")

	scraper := &fakeScraper{failWeeks: map[string]int{}, failPermanently: map[string]bool{}}
	store := &fakeStore{}
	driver := New(scraper, store, checkpointPath, 3, 0, discardLogger())

	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if _, err := driver.Run(context.Background(), start, start); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, err := os.Stat(checkpointPath); err != nil {
		t.Fatalf("expected checkpoint file to exist: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file after atomic write: %s", e.Name())
		}
	}
}
