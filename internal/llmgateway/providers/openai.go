package providers

import (
	"context"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"learningodyssey/internal/llmgateway"
)

// OpenAIProvider wraps github.com/openai/openai-go/v2 for the utility tier
// (summaries, titles, character-visual extraction, reformatting).
type OpenAIProvider struct {
	sdk   sdk.Client
	model string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		sdk:   sdk.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
		model: model,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error) {
	params := p.buildParams(req)
	comp, err := p.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req llmgateway.CompletionRequest, onDelta func(string)) error {
	params := p.buildParams(req)
	stream := p.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			onDelta(delta)
		}
	}
	return stream.Err()
}

func (p *OpenAIProvider) buildParams(req llmgateway.CompletionRequest) sdk.ChatCompletionNewParams {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	messages = append(messages, sdk.UserMessage(req.Prompt))
	return sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: messages,
	}
}
