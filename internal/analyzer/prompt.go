package analyzer

import (
	"fmt"
	"strings"

	"github.com/newsctl/newsctl/internal/model"
)

// imageState selects which post-prompt variant to build: no image URL at
// all, an image successfully attached, or an image that could not be
// downloaded. This is the small enumerated set of prompt builders spec §9
// calls for ("no reflective/runtime code generation").
type imageState int

const (
	imageNone imageState = iota
	imageAttached
	imageUnavailable
)

// buildEventPrompt states the task, enumerates the event's fields with
// "N/A" for missing values, and specifies the scoring rubric (spec §4.3).
func buildEventPrompt(e model.EconomicEvent) string {
	var sb strings.Builder

	sb.WriteString("You are a financial analyst scoring the market sentiment impact of an economic calendar release.\n\n")
	sb.WriteString("## Event\n")
	sb.WriteString(fmt.Sprintf("Name: %s\n", e.EventName))
	sb.WriteString(fmt.Sprintf("Currency: %s\n", e.Currency))
	sb.WriteString(fmt.Sprintf("Impact: %s\n", e.Impact))
	sb.WriteString(fmt.Sprintf("Actual: %s\n", orNA(e.Actual)))
	sb.WriteString(fmt.Sprintf("Forecast: %s\n", orNA(e.Forecast)))
	sb.WriteString(fmt.Sprintf("Previous: %s\n", orNA(e.Previous)))

	sb.WriteString("\n## Scoring rubric\n")
	sb.WriteString("Score the sentiment impact on the event's currency in the range -1.0 (strongly bearish) ")
	sb.WriteString("to +1.0 (strongly bullish), weighing:\n")
	sb.WriteString("1. Direction of the actual value versus forecast (beat/miss/inline).\n")
	sb.WriteString("2. Magnitude of the deviation from forecast, relative to the previous value.\n")
	sb.WriteString("3. The event's impact level (higher-impact events warrant more extreme scores).\n")
	sb.WriteString("4. How significant this indicator typically is for currency markets.\n\n")

	sb.WriteString("IMPORTANT: respond with ONLY a single JSON object, no markdown fences, no commentary:\n")
	sb.WriteString(`{"score": <number in [-1,1]>, "reasoning": "<short string>"}`)
	sb.WriteString("\n")

	return sb.String()
}

// buildPostPrompt includes title, optional body, optional URL; requests the
// same JSON shape as the event prompt plus symbols/symbol_sentiments (spec
// §4.3). The image-unavailable variant still includes the URL, explicitly
// notes the image couldn't be fetched, and instructs the model to reason
// from title/body alone rather than silently degrading to an empty-body
// neutral score (spec §4.3, §9).
func buildPostPrompt(p model.ForumPost, state imageState) string {
	var sb strings.Builder

	sb.WriteString("You are a financial analyst scoring the market sentiment of a forum post.\n\n")
	sb.WriteString("## Post\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", p.Title))
	if p.Body != nil && *p.Body != "" {
		sb.WriteString(fmt.Sprintf("Body: %s\n", *p.Body))
	}
	if p.URL != nil && *p.URL != "" {
		sb.WriteString(fmt.Sprintf("URL: %s\n", *p.URL))
		switch state {
		case imageAttached:
			sb.WriteString("An image from this URL is attached below; consider it as part of the context.\n")
		case imageUnavailable:
			sb.WriteString("Note: the image at this URL could not be downloaded and is unavailable for this analysis. ")
			sb.WriteString("Reason from the title and body text only; do not assume what the image shows.\n")
		}
	}

	sb.WriteString("\n## Task\n")
	sb.WriteString("Score the post's sentiment in the range -1.0 (strongly bearish) to +1.0 (strongly bullish).\n")
	sb.WriteString("Also extract any stock tickers, crypto symbols, or forex pairs mentioned, each with its own ")
	sb.WriteString("sentiment score in the same range.\n\n")

	sb.WriteString("IMPORTANT: respond with ONLY a single JSON object, no markdown fences, no commentary:\n")
	sb.WriteString(`{"score": <number in [-1,1]>, "reasoning": "<short string>", "symbols": [<tickers>], "symbol_sentiments": {"<ticker>": <number in [-1,1]>}}`)
	sb.WriteString("\n")

	return sb.String()
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}
