// Package errs defines the sentinel error taxonomy shared across the
// harvest/analyze/persist pipeline (spec §7). It has no dependencies on any
// other internal package so every component can return these without
// import cycles.
package errs

import "errors"

// Calendar scraper (C1).
var (
	ErrBotChallenged  = errors.New("calendar scraper: bot challenge detected")
	ErrScrapeTimeout  = errors.New("calendar scraper: timed out")
	ErrParseFailure   = errors.New("calendar scraper: page structure could not be parsed")
	ErrPermanentFetch = errors.New("calendar scraper: permanent fetch failure")
)

// Forum client (C2).
var (
	ErrForumAuth        = errors.New("forum client: authentication failed")
	ErrForumRateLimited = errors.New("forum client: rate limit exhausted")
)

// Sentiment analyzer (C3).
var (
	ErrAnalysisRateLimited = errors.New("analyzer: rate limit exhausted after retries")
	ErrAnalysisMalformed   = errors.New("analyzer: malformed LLM response")
	ErrMissingAPIKey       = errors.New("analyzer: missing API key")
)

// Pair aggregator (C6).
var ErrUnknownPair = errors.New("aggregator: unsupported currency pair")

// Backfill driver (C7).
var ErrCheckpointCorrupt = errors.New("backfill: checkpoint file is corrupt")

// ErrCancelled is the cancellation sentinel. On cancellation the suspension
// points (scraper page loads, image downloads, LLM calls, forum calls,
// database writes) return ctx.Err() or an error of their own; none of them
// returns ErrCancelled.
var ErrCancelled = errors.New("operation cancelled")

// Config (C5 startup).
var (
	ErrMissingConfig = errors.New("config: configuration could not be loaded")
	ErrInvalidPair   = errors.New("config: invalid pair code")
)
