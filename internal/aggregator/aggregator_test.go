package aggregator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

type fakeEventSource struct {
	byCurrency map[string][]float64
}

func scored(scores ...float64) []model.EconomicEvent {
	events := make([]model.EconomicEvent, len(scores))
	for i, s := range scores {
		s := s
		events[i] = model.EconomicEvent{SentimentScore: &s}
	}
	return events
}

func (f *fakeEventSource) EventsForCurrency(ctx context.Context, currency string, since time.Time) ([]model.EconomicEvent, error) {
	return scored(f.byCurrency[currency]...), nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func TestAggregateEURUSD(t *testing.T) {
	src := &fakeEventSource{byCurrency: map[string][]float64{
		"EUR": {0.5, 0.3, 0.5},
		"USD": {-0.2, -0.2},
	}}

	result, err := Aggregate(context.Background(), src, "EURUSD", DefaultLookback, time.Now())
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}

	if got := round4(result.Sentiment); got != 0.6333 {
		t.Errorf("sentiment = %v, want 0.6333", got)
	}
	if result.Signal != "Favor base strength" {
		t.Errorf("signal = %q, want %q", result.Signal, "Favor base strength")
	}
	if result.Base.EventCount != 3 || result.Quote.EventCount != 2 {
		t.Errorf("unexpected event counts: base=%d quote=%d", result.Base.EventCount, result.Quote.EventCount)
	}
}

func TestAggregateNoEventsIsNeutralZero(t *testing.T) {
	src := &fakeEventSource{byCurrency: map[string][]float64{}}

	result, err := Aggregate(context.Background(), src, "GBPUSD", DefaultLookback, time.Now())
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if result.Sentiment != 0.0 || result.Signal != "Neutral" {
		t.Errorf("expected neutral zero sentiment, got sentiment=%v signal=%q", result.Sentiment, result.Signal)
	}
}

func TestAggregateUnknownPair(t *testing.T) {
	src := &fakeEventSource{byCurrency: map[string][]float64{}}

	_, err := Aggregate(context.Background(), src, "XXXYYY", DefaultLookback, time.Now())
	if err == nil {
		t.Fatal("expected error for unknown pair")
	}
	if !errors.Is(err, errs.ErrUnknownPair) {
		t.Errorf("expected ErrUnknownPair, got %v", err)
	}
}
