// Package aggregator implements the pair aggregator (C6): it derives
// directional sentiment for a currency pair from its two currencies' scored
// economic events over a lookback window.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

// DefaultLookback is the default Δt (one week) per spec §4.6.
const DefaultLookback = 168 * time.Hour

// SupportedPairs is the fixed set of pairs the aggregator knows (spec §4.6).
var SupportedPairs = map[string][2]string{
	"EURUSD": {"EUR", "USD"},
	"GBPUSD": {"GBP", "USD"},
	"USDJPY": {"USD", "JPY"},
	"USDCHF": {"USD", "CHF"},
	"AUDUSD": {"AUD", "USD"},
	"USDCAD": {"USD", "CAD"},
	"NZDUSD": {"NZD", "USD"},
	"EURGBP": {"EUR", "GBP"},
	"EURJPY": {"EUR", "JPY"},
	"GBPJPY": {"GBP", "JPY"},
}

// EventSource supplies scored events for a currency over a lookback window;
// satisfied by *store.Store (via its embedded *store.Queries).
type EventSource interface {
	EventsForCurrency(ctx context.Context, currency string, since time.Time) ([]model.EconomicEvent, error)
}

// CurrencySentiment is avg(ccy, Δt) plus the sample it was computed from.
type CurrencySentiment struct {
	Currency   string
	Average    float64
	EventCount int
}

// PairSentiment is the aggregator's full result for one pair (spec §4.6).
type PairSentiment struct {
	Pair      string
	Sentiment float64
	Base      CurrencySentiment
	Quote     CurrencySentiment
	Lookback  time.Duration
	Signal    string
}

// Aggregate computes PairSentiment for pair (e.g. "EURUSD") using events
// with timestamp >= now-lookback. lookback <= 0 uses DefaultLookback.
func Aggregate(ctx context.Context, src EventSource, pair string, lookback time.Duration, now time.Time) (PairSentiment, error) {
	normalized := strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(pair))
	currencies, ok := SupportedPairs[normalized]
	if !ok {
		return PairSentiment{}, fmt.Errorf("%w: %s", errs.ErrUnknownPair, pair)
	}

	if lookback <= 0 {
		lookback = DefaultLookback
	}
	since := now.Add(-lookback)

	base, err := currencyAverage(ctx, src, currencies[0], since)
	if err != nil {
		return PairSentiment{}, fmt.Errorf("aggregating base currency %s: %w", currencies[0], err)
	}
	quote, err := currencyAverage(ctx, src, currencies[1], since)
	if err != nil {
		return PairSentiment{}, fmt.Errorf("aggregating quote currency %s: %w", currencies[1], err)
	}

	sentiment := model.ClampScore(base.Average - quote.Average)

	return PairSentiment{
		Pair:      currencies[0] + "/" + currencies[1],
		Sentiment: sentiment,
		Base:      base,
		Quote:     quote,
		Lookback:  lookback,
		Signal:    signalFor(sentiment),
	}, nil
}

// currencyAverage computes avg(ccy, Δt): mean of sentiment_score over
// scored events with timestamp >= since, or 0.0 if there are none (spec
// §4.6).
func currencyAverage(ctx context.Context, src EventSource, currency string, since time.Time) (CurrencySentiment, error) {
	events, err := src.EventsForCurrency(ctx, currency, since)
	if err != nil {
		return CurrencySentiment{}, err
	}

	if len(events) == 0 {
		return CurrencySentiment{Currency: currency, Average: 0.0, EventCount: 0}, nil
	}

	var sum float64
	for _, e := range events {
		if e.SentimentScore != nil {
			sum += *e.SentimentScore
		}
	}

	return CurrencySentiment{
		Currency:   currency,
		Average:    sum / float64(len(events)),
		EventCount: len(events),
	}, nil
}

// signalFor maps a pair sentiment to its human-readable tag: >= 0.3 favors
// base strength, <= -0.3 favors quote strength, otherwise neutral (spec
// §4.6).
func signalFor(sentiment float64) string {
	switch {
	case sentiment >= 0.3:
		return "Favor base strength"
	case sentiment <= -0.3:
		return "Favor quote strength"
	default:
		return "Neutral"
	}
}
