package analyzer

import "testing"

func TestParseLLMResponseClampsHighScore(t *testing.T) {
	body := `{"score": 1.7, "reasoning": "strong beat"}`

	result := ParseLLMResponse(body, false)
	if result.SentimentScore != 1.0 {
		t.Errorf("SentimentScore = %v, want 1.0", result.SentimentScore)
	}
	if result.Reasoning != "strong beat" {
		t.Errorf("Reasoning = %q, want %q", result.Reasoning, "strong beat")
	}
}

func TestParseLLMResponseTolerantOfCodeFence(t *testing.T) {
	body := "```json\n{\"score\": 2.5, \"reasoning\": \"huge miss\"}\n```"

	result := ParseLLMResponse(body, false)
	if result.SentimentScore != 1.0 {
		t.Errorf("SentimentScore = %v, want 1.0 (clamped)", result.SentimentScore)
	}
}

func TestParseLLMResponseFallsBackToKeywordHeuristic(t *testing.T) {
	result := ParseLLMResponse("looks bearish to me", false)
	if result.SentimentScore != -0.3 {
		t.Errorf("SentimentScore = %v, want -0.3", result.SentimentScore)
	}
	if !result.Metadata.ParseFallbackUsed {
		t.Error("expected ParseFallbackUsed to be true")
	}
}

func TestParseLLMResponseSymbolsSubsetInvariant(t *testing.T) {
	body := `{"score": 0.7, "reasoning": "momentum play", "symbols": ["NVDA", "AAPL", "BTC"], "symbol_sentiments": {"NVDA": 0.9, "AAPL": -0.7, "BTC": 0.3, "TSLA": 0.5}}`

	result := ParseLLMResponse(body, true)
	if len(result.Symbols) != 3 {
		t.Fatalf("Symbols = %v, want 3 entries", result.Symbols)
	}
	for ticker := range result.SymbolSentiments {
		found := false
		for _, s := range result.Symbols {
			if s == ticker {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("symbol_sentiments key %q not present in symbols %v", ticker, result.Symbols)
		}
	}
	if _, ok := result.SymbolSentiments["TSLA"]; ok {
		t.Error("TSLA should have been dropped: not in the symbols list")
	}
}

func TestParseLLMResponseEmptyIsMalformed(t *testing.T) {
	result := ParseLLMResponse("", false)
	if result.SentimentScore != 0.0 {
		t.Errorf("SentimentScore = %v, want 0.0", result.SentimentScore)
	}
	if result.Metadata.Error == "" {
		t.Error("expected a non-empty error in metadata")
	}
}
