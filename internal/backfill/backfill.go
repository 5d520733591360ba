// Package backfill implements the backfill driver (C7): it drives the
// calendar scraper over [start, end] week by week, upserting each week
// through the store and checkpointing progress so an interrupted run can
// resume without re-scraping completed weeks.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/logging"
	"github.com/newsctl/newsctl/internal/model"
	"github.com/newsctl/newsctl/internal/tracing"
)

// Scraper is the subset of calendar.Scraper the driver needs.
type Scraper interface {
	ScrapeWeek(ctx context.Context, date time.Time) ([]model.EconomicEvent, error)
}

// Store is the subset of store.Store the driver needs.
type Store interface {
	UpsertEvents(ctx context.Context, events []model.EconomicEvent) error
}

// Checkpoint is the on-disk backfill progress record (spec §6: "JSON object
// {last_completed_week_anchor, failed_weeks, started_at, updated_at}").
type Checkpoint struct {
	LastCompletedWeekAnchor *time.Time  `json:"last_completed_week_anchor"`
	FailedWeeks             []time.Time `json:"failed_weeks"`
	StartedAt               time.Time   `json:"started_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// Driver runs the week-by-week backfill.
type Driver struct {
	scraper       Scraper
	store         Store
	checkpointPath string
	maxRetries    int
	interWeekJitter time.Duration
	logger        *slog.Logger
}

// New creates a Driver. maxRetries bounds per-week retry attempts (default
// 3); interWeekJitter adds randomized delay between weeks on top of C1's
// own inter-request delay (spec §4.7).
func New(scraper Scraper, store Store, checkpointPath string, maxRetries int, interWeekJitter time.Duration, logger *slog.Logger) *Driver {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Driver{
		scraper:        scraper,
		store:          store,
		checkpointPath: checkpointPath,
		maxRetries:     maxRetries,
		interWeekJitter: interWeekJitter,
		logger:         logger,
	}
}

// Run iterates weeks ascending from start to end, resuming from any
// existing checkpoint (skipping weeks <= the last completed anchor).
func (d *Driver) Run(ctx context.Context, start, end time.Time) (Checkpoint, error) {
	checkpoint, err := d.loadCheckpoint()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", errs.ErrCheckpointCorrupt, err)
	}
	if checkpoint.StartedAt.IsZero() {
		checkpoint.StartedAt = start
	}

	for week := weekAnchor(start); !week.After(weekAnchor(end)); week = week.AddDate(0, 0, 7) {
		if checkpoint.LastCompletedWeekAnchor != nil && !week.After(*checkpoint.LastCompletedWeekAnchor) {
			d.logger.Debug("skipping already-completed week", "week", week)
			continue
		}

		select {
		case <-ctx.Done():
			return checkpoint, ctx.Err()
		default:
		}

		weekCtx, weekSpan := tracing.StartSpan(ctx, "backfill_week")
		timer := logging.StartOperation(d.logger, "backfill_week", "week", week)
		err := d.processWeek(weekCtx, week)
		weekSpan.End()
		if err != nil {
			timer.EndWithError(err)
			checkpoint.FailedWeeks = append(checkpoint.FailedWeeks, week)
		} else {
			timer.End()
			w := week
			checkpoint.LastCompletedWeekAnchor = &w
		}

		checkpoint.UpdatedAt = time.Now().UTC()
		if err := d.saveCheckpoint(checkpoint); err != nil {
			return checkpoint, fmt.Errorf("persisting checkpoint: %w", err)
		}

		d.interWeekDelay()
	}

	return checkpoint, nil
}

// processWeek scrapes and upserts one week, retrying transient failures
// with exponential backoff up to maxRetries (spec §4.7).
func (d *Driver) processWeek(ctx context.Context, week time.Time) error {
	const baseDelay = time.Second

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		events, err := d.scraper.ScrapeWeek(ctx, week)
		if err != nil {
			lastErr = err
			continue
		}

		if err := d.store.UpsertEvents(ctx, events); err != nil {
			return fmt.Errorf("upserting week %s: %w", week.Format("2006-01-02"), err)
		}
		return nil
	}

	return fmt.Errorf("scraping week %s after %d attempts: %w", week.Format("2006-01-02"), d.maxRetries+1, lastErr)
}

// interWeekDelay sleeps a random jitter in [0, interWeekJitter) between
// weeks, on top of the base delay C1 itself enforces before each page load,
// to further reduce block risk across consecutive week requests (spec §4.7).
func (d *Driver) interWeekDelay() {
	if d.interWeekJitter <= 0 {
		return
	}
	time.Sleep(time.Duration(rand.Int63n(int64(d.interWeekJitter))))
}

func weekAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (d *Driver) loadCheckpoint() (Checkpoint, error) {
	data, err := os.ReadFile(d.checkpointPath)
	if os.IsNotExist(err) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, err
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return Checkpoint{}, err
	}
	return checkpoint, nil
}

// saveCheckpoint writes the checkpoint atomically: a temp file in the same
// directory, then an os.Rename so a crash mid-write never leaves a
// partially-written checkpoint (spec §6).
func (d *Driver) saveCheckpoint(c Checkpoint) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(d.checkpointPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, d.checkpointPath)
}
