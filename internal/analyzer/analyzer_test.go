package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

// fakeProvider scores prompts according to scripted results keyed by a
// substring of the prompt (e.g. the event name), so it stays deterministic
// under the batch worker pool's concurrent dispatch.
type fakeProvider struct {
	results map[string]model.AnalysisResult
	errs    map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: map[string]model.AnalysisResult{}, errs: map[string]error{}}
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, wantSymbols bool) (model.AnalysisResult, error) {
	for key, err := range f.errs {
		if strings.Contains(prompt, key) {
			return model.AnalysisResult{}, err
		}
	}
	for key, r := range f.results {
		if strings.Contains(prompt, key) {
			return r, nil
		}
	}
	return model.AnalysisResult{SentimentScore: 0.5}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvents(n int) []model.EconomicEvent {
	events := make([]model.EconomicEvent, n)
	for i := range events {
		events[i] = model.EconomicEvent{ID: int64(i + 1), EventName: fmt.Sprintf("event-%d", i)}
	}
	return events
}

func TestBatchEventsPropagatesRateLimitExhaustionAsFatal(t *testing.T) {
	provider := newFakeProvider()
	provider.errs["event-0"] = fmt.Errorf("%w after 3 attempts: rate limited", errs.ErrAnalysisRateLimited)

	a := New(provider, "test-model", Config{MaxRetries: 1, BatchSize: 1}, discardLogger())

	_, err := a.BatchEvents(context.Background(), testEvents(1))
	if err == nil {
		t.Fatal("expected BatchEvents to return an error when rate limiting is exhausted")
	}
	if !errors.Is(err, errs.ErrAnalysisRateLimited) {
		t.Errorf("expected error chain to contain ErrAnalysisRateLimited, got %v", err)
	}
}

func TestBatchEventsRecordsPerItemErrorAndContinues(t *testing.T) {
	provider := newFakeProvider()
	provider.errs["event-1"] = errors.New("permanent provider failure")

	a := New(provider, "test-model", Config{MaxRetries: 1, BatchSize: 4}, discardLogger())

	results, err := a.BatchEvents(context.Background(), testEvents(3))
	if err != nil {
		t.Fatalf("expected a non-rate-limit per-item error not to fail the batch, got %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].SentimentScore != 0.0 || results[1].Metadata.Error == "" {
		t.Errorf("expected item 1 to carry a zero score and a non-empty error, got %+v", results[1])
	}
	for _, i := range []int{0, 2} {
		if results[i].Metadata.Error != "" {
			t.Errorf("expected item %d to succeed, got error %q", i, results[i].Metadata.Error)
		}
	}
}
