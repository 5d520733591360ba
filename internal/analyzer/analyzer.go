// Package analyzer implements the sentiment analyzer (C3): it scores
// economic events and forum posts via an LLM provider, with bounded
// concurrency, retry/backoff on rate limiting, and image-context fallback.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

// Provider is the LLM backend used to score a single prompt. wantSymbols
// distinguishes the post path (which asks for symbols/symbol_sentiments)
// from the event path (which does not).
type Provider interface {
	Complete(ctx context.Context, prompt string, wantSymbols bool) (model.AnalysisResult, error)
}

// Analyzer scores events and posts, one item at a time, through a Provider.
type Analyzer struct {
	provider     Provider
	httpClient   *http.Client
	modelName    string
	maxRetries   int
	batchSize    int
	imageTimeout time.Duration
	imageRetries int
	logger       *slog.Logger
}

// Config bundles Analyzer's tunables (spec §4.3, §6 defaults noted inline).
type Config struct {
	MaxRetries      int           // default 3
	BatchSize       int           // default 4, bounds concurrent LLM calls
	ImageTimeout    time.Duration // default 10s
	ImageMaxRetries int           // default 3
}

// New creates an Analyzer. Zero-valued Config fields fall back to spec
// defaults.
func New(provider Provider, modelName string, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 10 * time.Second
	}
	if cfg.ImageMaxRetries <= 0 {
		cfg.ImageMaxRetries = 3
	}

	return &Analyzer{
		provider:     provider,
		httpClient:   &http.Client{},
		modelName:    modelName,
		maxRetries:   cfg.MaxRetries,
		batchSize:    cfg.BatchSize,
		imageTimeout: cfg.ImageTimeout,
		imageRetries: cfg.ImageMaxRetries,
		logger:       logger,
	}
}

// AnalyzeEvent scores a single economic event.
func (a *Analyzer) AnalyzeEvent(ctx context.Context, e model.EconomicEvent) (model.AnalysisResult, error) {
	prompt := buildEventPrompt(e)
	return a.completeWithRetry(ctx, prompt, false)
}

// AnalyzePost scores a single forum post. When the post's URL looks like an
// image (a .jpg/.jpeg/.png/.gif/.webp path, or an i.redd.it or i.imgur.com
// link), it's downloaded with bounded retries first; a permanent failure
// (404/403) or exhausted retries falls back to the image-unavailable prompt
// variant rather than skipping analysis (spec §4.3: must not silently
// degrade into an empty-body neutral score), and the download error is
// recorded as Metadata.FailureReason.
// Symbols from the LLM response are unioned with the secondary regex
// extractor's hits over title+body (spec §9).
func (a *Analyzer) AnalyzePost(ctx context.Context, p model.ForumPost) (model.AnalysisResult, error) {
	state := imageNone
	imageFailed := false
	failureReason := ""

	imageURL := ""
	if p.URL != nil {
		lower := strings.ToLower(*p.URL)
		if i := strings.IndexAny(lower, "?#"); i >= 0 {
			lower = lower[:i]
		}
		for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
			if strings.HasSuffix(lower, ext) {
				imageURL = *p.URL
			}
		}
		if strings.Contains(lower, "://i.redd.it/") || strings.Contains(lower, "://i.imgur.com/") {
			imageURL = *p.URL
		}
	}

	if imageURL != "" {
		if err := a.fetchImageWithRetry(ctx, imageURL); err != nil {
			a.logger.Warn("image unavailable, falling back to text-only analysis", "url", imageURL, "error", err)
			state = imageUnavailable
			imageFailed = true
			failureReason = err.Error()
		} else {
			state = imageAttached
		}
	}

	prompt := buildPostPrompt(p, state)
	result, err := a.completeWithRetry(ctx, prompt, true)
	if err != nil {
		return result, err
	}

	result.Metadata.ImageDownloadFailed = imageFailed
	result.Metadata.FailureReason = failureReason

	text := p.Title
	if p.Body != nil {
		text += " " + *p.Body
	}
	result.Symbols = unionSymbols(result.Symbols, extractTickersRegex(text))

	if len(result.Symbols) > 0 {
		categories := make(map[string]string, len(result.Symbols))
		for _, sym := range result.Symbols {
			categories[sym] = categorizeSymbol(sym)
		}
		result.Metadata.SymbolCategories = categories
	}

	return result, nil
}

// completeWithRetry calls the provider, retrying on rate-limit errors with
// exponential backoff (base_delay * 2^attempt) up to maxRetries (spec
// §4.3). The final retry count is recorded in metadata.
func (a *Analyzer) completeWithRetry(ctx context.Context, prompt string, wantSymbols bool) (model.AnalysisResult, error) {
	const baseDelay = 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.AnalysisResult{}, ctx.Err()
			}
		}

		result, err := a.provider.Complete(ctx, prompt, wantSymbols)
		if err == nil {
			result.Metadata.Model = a.modelName
			result.Metadata.RetryCount = attempt
			return result, nil
		}

		lastErr = err
		if !errors.Is(err, errs.ErrAnalysisRateLimited) {
			return model.AnalysisResult{}, err
		}
		a.logger.Warn("analyzer rate limited, retrying", "attempt", attempt, "error", err)
	}

	return model.AnalysisResult{}, fmt.Errorf("%w after %d attempts: %v", errs.ErrAnalysisRateLimited, a.maxRetries+1, lastErr)
}

// fetchImageWithRetry downloads url with bounded retries; 404/403 are
// permanent and not retried (spec §4.3).
func (a *Analyzer) fetchImageWithRetry(ctx context.Context, url string) error {
	const baseDelay = 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < a.imageRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, a.imageTimeout)
		err := a.doFetchImage(reqCtx, url)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanentImageError(err) {
			return err
		}
	}

	return fmt.Errorf("image download failed after %d attempts: %w", a.imageRetries, lastErr)
}

type permanentImageError struct {
	status int
}

func (e *permanentImageError) Error() string {
	return fmt.Sprintf("image download: permanent status %d", e.status)
}

func isPermanentImageError(err error) bool {
	var permErr *permanentImageError
	return errors.As(err, &permErr)
}

func (a *Analyzer) doFetchImage(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return &permanentImageError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download: unexpected status %d", resp.StatusCode)
	}

	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// batchResult pairs an item's outcome so Batch can flatten concurrent
// results back into input order.
type batchResult struct {
	result model.AnalysisResult
	err    error
}

// BatchEvents analyzes events concurrently, bounded by the analyzer's
// configured batch size, preserving input order in the returned slice
// (spec §4.3/§9: batch is a bounded-concurrency pool of independent
// per-item calls, not a single combined LLM request).
func (a *Analyzer) BatchEvents(ctx context.Context, events []model.EconomicEvent) ([]model.AnalysisResult, error) {
	return a.batch(ctx, len(events), func(ctx context.Context, i int) (model.AnalysisResult, error) {
		return a.AnalyzeEvent(ctx, events[i])
	})
}

// BatchPosts analyzes posts concurrently; see BatchEvents.
func (a *Analyzer) BatchPosts(ctx context.Context, posts []model.ForumPost) ([]model.AnalysisResult, error) {
	return a.batch(ctx, len(posts), func(ctx context.Context, i int) (model.AnalysisResult, error) {
		return a.AnalyzePost(ctx, posts[i])
	})
}

func (a *Analyzer) batch(ctx context.Context, n int, analyzeOne func(context.Context, int) (model.AnalysisResult, error)) ([]model.AnalysisResult, error) {
	if n == 0 {
		return nil, nil
	}

	results := make([]batchResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.batchSize)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			result, err := analyzeOne(gctx, i)
			if err != nil && errors.Is(err, errs.ErrAnalysisRateLimited) {
				// Rate-limit exhaustion is fatal to the whole run (spec
				// §4.3/§9: only Config and exhausted-retry rate-limit
				// errors terminate a run); every other per-item error is
				// recorded and the run continues.
				return err
			}
			results[i] = batchResult{result: result, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.AnalysisResult, n)
	for i, r := range results {
		if r.err != nil {
			out[i] = model.AnalysisResult{
				SentimentScore: 0.0,
				Metadata:       model.AnalysisMetadata{Error: r.err.Error()},
			}
			continue
		}
		out[i] = r.result
	}
	return out, nil
}
