package providers

import (
	"context"

	"learningodyssey/internal/llmgateway"
)

// Mock is an in-memory Provider for gateway tests. Responses is consumed in
// FIFO order across both Complete and Stream calls; StreamChunk, if set,
// splits every Stream call's text into deltas of that many characters.
type Mock struct {
	Responses   []string
	StreamChunk int // characters per delta when streaming; 0 means one shot
	Err         error
	Calls       []llmgateway.CompletionRequest
}

func (m *Mock) next() string {
	if len(m.Responses) == 0 {
		return ""
	}
	r := m.Responses[0]
	m.Responses = m.Responses[1:]
	return r
}

func (m *Mock) Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	return m.next(), nil
}

func (m *Mock) Stream(ctx context.Context, req llmgateway.CompletionRequest, onDelta func(string)) error {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return m.Err
	}
	text := m.next()
	chunk := m.StreamChunk
	if chunk <= 0 {
		onDelta(text)
		return nil
	}
	for i := 0; i < len(text); i += chunk {
		end := i + chunk
		if end > len(text) {
			end = len(text)
		}
		onDelta(text[i:end])
	}
	return nil
}
