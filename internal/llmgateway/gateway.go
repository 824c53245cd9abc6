package llmgateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/retry"
)

// Gateway routes calls to the reasoning or utility provider by use case,
// wraps every Complete and Stream call in retry.Do, and applies paragraph
// reformatting to streamed narrative (the reformat calls themselves are not
// wrapped in retry.Do; reformatWithRetries has its own attempt loop).
type Gateway struct {
	reasoning Provider
	utility   Provider
	policy    retry.Policy
	logger    *slog.Logger
}

func New(reasoning, utility Provider, logger *slog.Logger) *Gateway {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 5 // spec: transient errors retried up to 5 attempts
	return &Gateway{reasoning: reasoning, utility: utility, policy: policy, logger: logger}
}

func (g *Gateway) providerFor(uc UseCase) Provider {
	if uc.Tier() == TierReasoning {
		return g.reasoning
	}
	return g.utility
}

// Complete is the non-streaming operation, used for summaries, titles,
// visual extraction, and image-prompt synthesis.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	provider := g.providerFor(req.UseCase)
	var result string
	err := retry.Do(ctx, g.policy, g.logger, isTransientLLMError, func(ctx context.Context) error {
		out, err := provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return "", g.classifyFailure(req.UseCase, err)
	}
	return result, nil
}

// Stream is the lazy, single-shot narrative delivery path. It buffers the
// first ~1,000 characters to decide whether reformatting is needed; if so,
// it stops relaying deltas, collects the full response, reformats it, and
// delivers the result as a single fragment instead.
func (g *Gateway) Stream(ctx context.Context, req CompletionRequest, onDelta func(string)) error {
	provider := g.providerFor(req.UseCase)

	var buffer strings.Builder
	var full strings.Builder
	bufferDecided := false
	triggeredReformat := false

	streamErr := retry.Do(ctx, g.policy, g.logger, isTransientLLMError, func(ctx context.Context) error {
		// Reset accumulation state on each retry attempt: a retried stream
		// call starts from scratch, not from a half-delivered prior attempt.
		buffer.Reset()
		full.Reset()
		bufferDecided = false
		triggeredReformat = false

		return provider.Stream(ctx, req, func(delta string) {
			full.WriteString(delta)
			if triggeredReformat {
				return
			}
			if !bufferDecided {
				buffer.WriteString(delta)
				if buffer.Len() < initialBufferChars {
					return
				}
				bufferDecided = true
				if needsReformatting(buffer.String()) {
					triggeredReformat = true
					return
				}
				onDelta(buffer.String())
				return
			}
			onDelta(delta)
		})
	})
	if streamErr != nil {
		return g.classifyFailure(req.UseCase, streamErr)
	}

	if !bufferDecided {
		if !needsReformatting(full.String()) {
			onDelta(full.String())
			return nil
		}
		triggeredReformat = true
	}

	if triggeredReformat {
		fixed, err := g.reformatWithRetries(ctx, full.String())
		if err != nil {
			// All retries failed: release the original text unchanged.
			onDelta(full.String())
			return nil
		}
		onDelta(fixed)
	}
	return nil
}

func (g *Gateway) classifyFailure(uc UseCase, err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) || !isTransientLLMError(err) {
		return &adventure.LLMPermanentError{UseCase: string(uc), Cause: err}
	}
	return &adventure.LLMTransientError{UseCase: string(uc), Cause: err}
}

// isTransientLLMError classifies provider errors for retry.Do. Vendor SDKs
// expose typed errors carrying an HTTP status; absent that, fall back to a
// message-based heuristic matching the same reasons internal/retry already
// recognizes for HTTP calls (rate limit, timeout, upstream 5xx).
func isTransientLLMError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode() {
		case 408, 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"rate limit", "timeout", "temporarily unavailable", "connection reset", "deadline exceeded", "overloaded", "service unavailable", "bad gateway"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
