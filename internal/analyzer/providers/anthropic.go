// Package providers holds LLM backend implementations of analyzer.Provider.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/newsctl/newsctl/internal/analyzer"
	"github.com/newsctl/newsctl/internal/errs"
	"github.com/newsctl/newsctl/internal/model"
)

// AnthropicProvider implements analyzer.Provider via Anthropic's Claude API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, modelName string) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicProvider{
		client: client,
		model:  modelName,
	}
}

// Complete sends prompt to Claude and parses the response into an
// AnalysisResult. Uses the prefilling technique — seeding the assistant
// turn with "{" — to force the model to continue with a bare JSON object
// rather than prose or a fenced code block (spec §4.3, §9: one JSON object
// per item, not a batched array).
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, wantSymbols bool) (model.AnalysisResult, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(p.model)),
		MaxTokens: anthropic.F(int64(1024)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")),
		}),
	})
	if err != nil {
		if isRateLimitError(err) {
			return model.AnalysisResult{}, fmt.Errorf("%w: %v", errs.ErrAnalysisRateLimited, err)
		}
		return model.AnalysisResult{}, fmt.Errorf("anthropic call failed: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	if responseText == "" {
		return model.AnalysisResult{}, fmt.Errorf("%w: empty response", errs.ErrAnalysisMalformed)
	}

	// Prepend "{" since we used prefilling: the response continues from
	// right after the opening brace.
	fullJSON := "{" + responseText
	return analyzer.ParseLLMResponse(fullJSON, wantSymbols), nil
}

func isRateLimitError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
