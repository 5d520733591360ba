package analyzer

import (
	"reflect"
	"sort"
	"testing"
)

func TestExtractTickersRegexCashtagsAndStandalone(t *testing.T) {
	text := "Bought $NVDA calls, sold $AAPL, watching BTC"

	got := extractTickersRegex(text)
	sort.Strings(got)

	want := []string{"AAPL", "BTC", "NVDA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extractTickersRegex(%q) = %v, want %v", text, got, want)
	}
}

func TestExtractTickersRegexIgnoresCommonWords(t *testing.T) {
	got := extractTickersRegex("I AM GOING TO THE STORE FOR SOME CASH")
	if len(got) != 0 {
		t.Errorf("expected no tickers extracted from common-word text, got %v", got)
	}
}

func TestUnionSymbolsDedupesPreservingLLMOrder(t *testing.T) {
	llm := []string{"NVDA", "AAPL"}
	regex := []string{"AAPL", "BTC"}

	got := unionSymbols(llm, regex)
	want := []string{"NVDA", "AAPL", "BTC"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unionSymbols(%v, %v) = %v, want %v", llm, regex, got, want)
	}
}
