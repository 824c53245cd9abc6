// Package providers wraps the vendor SDKs behind llmgateway.Provider.
package providers

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"learningodyssey/internal/llmgateway"
)

const anthropicDefaultMaxTokens int64 = 4096

// AnthropicProvider wraps github.com/anthropics/anthropic-sdk-go for the
// reasoning tier (story generation, scene description).
type AnthropicProvider struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		sdk:       anthropic.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
		model:     model,
		maxTokens: anthropicDefaultMaxTokens,
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error) {
	params := p.buildParams(req)
	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	return textFromBlocks(resp.Content), nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req llmgateway.CompletionRequest, onDelta func(string)) error {
	params := p.buildParams(req)
	stream := p.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				onDelta(text.Text)
			}
		}
	}
	return stream.Err()
}

func (p *AnthropicProvider) buildParams(req llmgateway.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func textFromBlocks(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}
