package analyzer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/newsctl/newsctl/internal/model"
)

// jsonObjectPattern matches a {...} object, with at most one level of nested
// objects inside it, anywhere in a blob of text, tolerating prose
// before/after it.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// codeFencePattern matches a ```json ... ``` or ``` ... ``` fenced block.
var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// rawLLMResponse is the JSON shape requested from the LLM for both events
// and posts (posts additionally populate Symbols/SymbolSentiments).
type rawLLMResponse struct {
	Score            json.Number        `json:"score"`
	Reasoning        string             `json:"reasoning"`
	Symbols          []string           `json:"symbols"`
	SymbolSentiments map[string]float64 `json:"symbol_sentiments"`
}

// extractJSONObject pulls the outermost {...} JSON object out of text that
// may carry Markdown fences or explanatory prose around it, validating that
// what's extracted actually parses (spec §4.3/§9).
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		if json.Valid([]byte(m[1])) {
			return m[1]
		}
	}

	if m := jsonObjectPattern.FindString(text); m != "" {
		if json.Valid([]byte(m)) {
			return m
		}
	}

	return ""
}

// ParseLLMResponse is the two-tier response parser: strict JSON first,
// falling back to keyword heuristics when the model deviates from schema
// (spec §4.3, §9). Exported so provider implementations in subpackages can
// turn raw model text into an AnalysisResult.
func ParseLLMResponse(text string, wantSymbols bool) model.AnalysisResult {
	if strings.TrimSpace(text) == "" {
		return model.AnalysisResult{
			SentimentScore: 0.0,
			Metadata:       model.AnalysisMetadata{Error: "empty response from LLM"},
		}
	}

	if jsonStr := extractJSONObject(text); jsonStr != "" {
		var raw rawLLMResponse
		if err := json.Unmarshal([]byte(jsonStr), &raw); err == nil {
			score, scoreErr := raw.Score.Float64()
			if scoreErr != nil {
				score = 0.0
			}
			result := model.AnalysisResult{
				SentimentScore: model.ClampScore(score),
				Reasoning:      raw.Reasoning,
			}
			if wantSymbols {
				result.Symbols, result.SymbolSentiments = reconcileSymbols(raw.Symbols, raw.SymbolSentiments)
			}
			return result
		}
	}

	score, reasoning := parseScoreFromText(text)
	result := model.AnalysisResult{
		SentimentScore: score,
		Reasoning:      reasoning,
		Metadata: model.AnalysisMetadata{
			ParseFallbackUsed: true,
		},
	}
	return result
}

// bullish/bearish/neutral keyword cues and the magnitudes spec §4.3/§9
// assign them: ±0.3 for a recognized cue, 0 otherwise. This deliberately
// diverges from the tiered ±0.8/±0.5 magnitudes used by the system this
// was adapted from.
var (
	bullishCues = []string{"bullish", "positive", "optimistic", "favorable"}
	bearishCues = []string{"bearish", "negative", "pessimistic", "unfavorable"}
	neutralCues = []string{"neutral", "no change", "unchanged", "mixed"}
)

func parseScoreFromText(text string) (float64, string) {
	reasoning := strings.TrimSpace(text)
	lower := strings.ToLower(reasoning)

	// Bearish cues are checked first: "unfavorable" contains the bullish cue
	// "favorable".
	for _, cue := range bearishCues {
		if strings.Contains(lower, cue) {
			return -0.3, reasoning
		}
	}
	for _, cue := range bullishCues {
		if strings.Contains(lower, cue) {
			return 0.3, reasoning
		}
	}
	for _, cue := range neutralCues {
		if strings.Contains(lower, cue) {
			return 0.0, reasoning
		}
	}
	return 0.0, reasoning
}

// reconcileSymbols deduplicates symbols preserving first occurrence and
// drops any symbol_sentiments entry whose key isn't also a listed symbol
// (I3: symbol_sentiments keys must be a subset of symbols).
func reconcileSymbols(symbols []string, sentiments map[string]float64) ([]string, map[string]float64) {
	seen := make(map[string]bool, len(symbols))
	deduped := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		deduped = append(deduped, s)
	}

	reconciled := make(map[string]float64, len(sentiments))
	for ticker, score := range sentiments {
		if seen[ticker] {
			reconciled[ticker] = model.ClampScore(score)
		}
	}

	return deduped, reconciled
}
