// Package orchestrator implements the pipeline orchestrator (C5): it
// executes a selected subset of phases — scrape events, store events,
// scrape posts, store posts, analyze unscored — over a selected period.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/newsctl/newsctl/internal/aggregator"
	"github.com/newsctl/newsctl/internal/analyzer"
	"github.com/newsctl/newsctl/internal/logging"
	"github.com/newsctl/newsctl/internal/model"
	"github.com/newsctl/newsctl/internal/store"
	"github.com/newsctl/newsctl/internal/tracing"
)

// ScrapePeriod selects how much of the calendar to harvest.
type ScrapePeriod string

const (
	ScrapeNone  ScrapePeriod = "none"
	ScrapeToday ScrapePeriod = "today"
	ScrapeWeek  ScrapePeriod = "week"
	ScrapeMonth ScrapePeriod = "month"
)

// PostSort selects the forum fetch mode.
type PostSort string

const (
	PostsNone PostSort = "none"
	PostsHot  PostSort = "hot"
	PostsNew  PostSort = "new"
	PostsTop  PostSort = "top"
)

// Config is the orchestrator's input per run (spec §4.5).
type Config struct {
	ScrapeEvents ScrapePeriod
	ScrapePosts  PostSort
	Analyze      bool
	DryRun       bool
	PostChannels []string
	PostLimit    int
	PairQuery    string // optional; computed after analyze if set
}

// CalendarScraper is the subset of calendar.Scraper the orchestrator needs.
type CalendarScraper interface {
	ScrapeDay(ctx context.Context, date time.Time) ([]model.EconomicEvent, error)
	ScrapeWeek(ctx context.Context, date time.Time) ([]model.EconomicEvent, error)
}

// ForumClient is the subset of forum.Client the orchestrator needs.
type ForumClient interface {
	FetchHot(ctx context.Context, channels []string, limit int) ([]model.ForumPost, error)
	FetchNew(ctx context.Context, channels []string, limit int) ([]model.ForumPost, error)
	FetchTop(ctx context.Context, channels []string, timeFilter string, limit int) ([]model.ForumPost, error)
}

// Result summarizes one run's outcome.
type Result struct {
	RunID          string
	EventsScraped  int
	PostsScraped   int
	EventsAnalyzed int
	PostsAnalyzed  int
	Pair           *aggregator.PairSentiment
	Warnings       []string
}

// Orchestrator wires the calendar scraper, forum client, store, and
// analyzer into the phase sequence spec §4.5 defines.
type Orchestrator struct {
	scraper  CalendarScraper
	forum    ForumClient
	store    *store.Store
	analyzer *analyzer.Analyzer
	logger   *slog.Logger
}

// New builds an Orchestrator.
func New(scraper CalendarScraper, forum ForumClient, st *store.Store, an *analyzer.Analyzer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{scraper: scraper, forum: forum, store: st, analyzer: an, logger: logger}
}

// Run executes cfg's selected phases in order: scrape events -> store
// events -> scrape posts -> store posts -> analyze unscored (spec §4.5).
// Combined runs share a single logical transaction only in dry-run mode,
// where every phase, analyze included, runs in one transaction that is
// rolled back at the end; otherwise each phase commits independently, so
// partial progress from an earlier phase survives a later phase's failure.
func (o *Orchestrator) Run(ctx context.Context, now time.Time, cfg Config) (Result, error) {
	result := Result{RunID: uuid.New().String()}
	logger := logging.WithComponent(o.logger, "orchestrator").With("run_id", result.RunID)

	ctx, span := tracing.StartSpan(ctx, "pipeline_run")
	defer span.End()

	timer := logging.StartOperation(logger, "pipeline_run", "scrape_events", cfg.ScrapeEvents, "scrape_posts", cfg.ScrapePosts, "analyze", cfg.Analyze, "dry_run", cfg.DryRun)

	if cfg.DryRun {
		err := o.store.RunInTransaction(ctx, true, func(ctx context.Context, q *store.Queries) error {
			if err := o.runPhases(ctx, now, cfg, q.UpsertEvents, q.UpsertPosts, &result); err != nil {
				return err
			}
			if cfg.Analyze {
				if _, err := o.analyzeUnscored(ctx, q, &result); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			timer.EndWithError(err)
			return result, err
		}
	} else {
		if err := o.runPhases(ctx, now, cfg, o.store.UpsertEvents, o.store.UpsertPosts, &result); err != nil {
			timer.EndWithError(err)
			return result, err
		}
	}

	if cfg.Analyze && !cfg.DryRun {
		analyzed, err := o.analyzeUnscored(ctx, o.store.Queries, &result)
		if err != nil {
			timer.EndWithError(err)
			return result, err
		}
		_ = analyzed
	}

	if cfg.PairQuery != "" {
		pair, err := aggregator.Aggregate(ctx, o.store, cfg.PairQuery, aggregator.DefaultLookback, now)
		if err != nil {
			err = fmt.Errorf("computing pair sentiment: %w", err)
			timer.EndWithError(err)
			return result, err
		}
		result.Pair = &pair
	}

	timer.End(
		"events_scraped", result.EventsScraped, "posts_scraped", result.PostsScraped,
		"events_analyzed", result.EventsAnalyzed, "posts_analyzed", result.PostsAnalyzed,
	)
	return result, nil
}

func (o *Orchestrator) runPhases(
	ctx context.Context,
	now time.Time,
	cfg Config,
	upsertEvents func(context.Context, []model.EconomicEvent) error,
	upsertPosts func(context.Context, []model.ForumPost) error,
	result *Result,
) error {
	if cfg.ScrapeEvents != ScrapeNone && cfg.ScrapeEvents != "" {
		scrapeCtx, scrapeSpan := tracing.StartSpan(ctx, "scrape_events")
		events, err := o.scrapeEvents(scrapeCtx, now, cfg.ScrapeEvents)
		scrapeSpan.End()
		if err != nil {
			return fmt.Errorf("scrape events phase: %w", err)
		}
		result.EventsScraped = len(events)

		storeCtx, storeSpan := tracing.StartSpan(ctx, "store_events")
		err = upsertEvents(storeCtx, events)
		storeSpan.End()
		if err != nil {
			return fmt.Errorf("store events phase: %w", err)
		}
	}

	if cfg.ScrapePosts != PostsNone && cfg.ScrapePosts != "" {
		scrapeCtx, scrapeSpan := tracing.StartSpan(ctx, "scrape_posts")
		posts, err := o.scrapePosts(scrapeCtx, cfg)
		scrapeSpan.End()
		if err != nil {
			return fmt.Errorf("scrape posts phase: %w", err)
		}
		result.PostsScraped = len(posts)

		storeCtx, storeSpan := tracing.StartSpan(ctx, "store_posts")
		err = upsertPosts(storeCtx, posts)
		storeSpan.End()
		if err != nil {
			return fmt.Errorf("store posts phase: %w", err)
		}
	}

	return nil
}

func (o *Orchestrator) scrapeEvents(ctx context.Context, now time.Time, period ScrapePeriod) ([]model.EconomicEvent, error) {
	switch period {
	case ScrapeToday:
		return o.scraper.ScrapeDay(ctx, now)
	case ScrapeWeek:
		return o.scraper.ScrapeWeek(ctx, now)
	case ScrapeMonth:
		return o.scrapeMonth(ctx, now)
	default:
		return nil, fmt.Errorf("unknown scrape period: %s", period)
	}
}

// scrapeMonth scrapes the weeks containing days 1, 8, 15, 22 and (where the
// month has one) 29 of now's month, merging their events. Days at the end of
// the month that fall in a later week than the last of those are not
// scraped.
func (o *Orchestrator) scrapeMonth(ctx context.Context, now time.Time) ([]model.EconomicEvent, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, -1)

	var events []model.EconomicEvent
	for week := monthStart; !week.After(monthEnd); week = week.AddDate(0, 0, 7) {
		weekEvents, err := o.scraper.ScrapeWeek(ctx, week)
		if err != nil {
			return nil, err
		}
		events = append(events, weekEvents...)
	}
	return events, nil
}

func (o *Orchestrator) scrapePosts(ctx context.Context, cfg Config) ([]model.ForumPost, error) {
	switch cfg.ScrapePosts {
	case PostsHot:
		return o.forum.FetchHot(ctx, cfg.PostChannels, cfg.PostLimit)
	case PostsNew:
		return o.forum.FetchNew(ctx, cfg.PostChannels, cfg.PostLimit)
	case PostsTop:
		return o.forum.FetchTop(ctx, cfg.PostChannels, "day", cfg.PostLimit)
	default:
		return nil, fmt.Errorf("unknown post sort: %s", cfg.ScrapePosts)
	}
}

// analyzeUnscored reads the unscored_* snapshot through q and scores it,
// writing each result back with its own single-row update through q. Outside
// dry-run each update commits on its own (spec §4.4, §4.5), so a failure
// partway through doesn't lose earlier progress.
func (o *Orchestrator) analyzeUnscored(ctx context.Context, q *store.Queries, result *Result) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "analyze_unscored")
	defer span.End()

	events, err := q.UnscoredEvents(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("loading unscored events: %w", err)
	}
	eventResults, err := o.analyzer.BatchEvents(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("analyzing events: %w", err)
	}
	for i, e := range events {
		r := eventResults[i]
		if r.Metadata.Error != "" {
			o.logger.Warn("event analysis failed, persisting zero score", "event_id", e.ID, "error", r.Metadata.Error)
		}
		raw, _ := rawResponseJSON(r)
		if err := q.UpdateEventScore(ctx, e.ID, r.SentimentScore, raw); err != nil {
			o.logger.Warn("writing event score failed", "event_id", e.ID, "error", err)
			continue
		}
		result.EventsAnalyzed++
	}

	posts, err := q.UnscoredPosts(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("loading unscored posts: %w", err)
	}
	postResults, err := o.analyzer.BatchPosts(ctx, posts)
	if err != nil {
		return 0, fmt.Errorf("analyzing posts: %w", err)
	}
	for i, p := range posts {
		r := postResults[i]
		if r.Metadata.Error != "" {
			o.logger.Warn("post analysis failed, persisting zero score", "post_id", p.ExternalID, "error", r.Metadata.Error)
		}
		raw, _ := rawResponseJSON(r)
		if err := q.UpdatePostScore(ctx, p.ID, r.SentimentScore, r.Symbols, r.SymbolSentiments, raw); err != nil {
			o.logger.Warn("writing post score failed", "post_id", p.ExternalID, "error", err)
			continue
		}
		result.PostsAnalyzed++
	}

	return result.EventsAnalyzed + result.PostsAnalyzed, nil
}

// rawResponseJSON serializes an AnalysisResult's reasoning and metadata for
// persistence in the raw_response JSONB column (spec §4.4).
func rawResponseJSON(r model.AnalysisResult) ([]byte, error) {
	return json.Marshal(struct {
		Reasoning string                 `json:"reasoning"`
		Metadata  model.AnalysisMetadata `json:"metadata"`
	}{
		Reasoning: r.Reasoning,
		Metadata:  r.Metadata,
	})
}
