package llmgateway

import (
	"context"
	"fmt"
	"strings"
)

const (
	initialBufferChars    = 1000
	reformatSentenceLimit = 8
	dialogueDensityLimit  = 0.35
	maxReformatAttempts   = 3
)

// needsReformatting applies the buffer heuristics: missing double-newline
// separators, too many sentences for a single paragraph, or a dialogue-heavy
// passage that reads poorly unbroken.
func needsReformatting(buffer string) bool {
	if !strings.Contains(buffer, "\n\n") {
		return true
	}
	if countSentences(buffer) > reformatSentenceLimit {
		return true
	}
	if dialogueDensity(buffer) > dialogueDensityLimit {
		return true
	}
	return false
}

func countSentences(s string) int {
	count := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

// dialogueDensity is the fraction of characters inside quoted dialogue, a
// rough proxy for "this reads like a wall of unbroken dialogue".
func dialogueDensity(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	inQuote := false
	quoted := 0
	for _, r := range s {
		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			quoted++
		}
	}
	return float64(quoted) / float64(len(s))
}

const reformatSystemPrompt = "You reformat narrative prose into readable paragraphs. Preserve every word; change only paragraph breaks."

// reformatWithRetries invokes reformat_text_with_paragraphs with up to
// maxReformatAttempts escalating instructions. It MUST receive the entire
// accumulated response, never just the initial buffer.
func (g *Gateway) reformatWithRetries(ctx context.Context, full string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReformatAttempts; attempt++ {
		result, err := g.utility.Complete(ctx, CompletionRequest{
			System:  reformatSystemPrompt,
			Prompt:  fmt.Sprintf("%s\n\n---\n%s", reformatInstruction(attempt), full),
			UseCase: UseCaseParagraphReformatting,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if strings.Contains(result, "\n\n") {
			return result, nil
		}
		lastErr = fmt.Errorf("reformat attempt %d produced no paragraph breaks", attempt)
	}
	return "", lastErr
}

func reformatInstruction(attempt int) string {
	switch attempt {
	case 1:
		return "Reformat the following narrative into natural paragraphs separated by a single blank line."
	case 2:
		return "The previous attempt did not add paragraph breaks. Insert a blank line between distinct beats of action or dialogue. Do not summarize, shorten, or rewrite any sentence."
	default:
		return "This is critical: the output MUST contain at least one blank line between paragraphs. Preserve every single word of the original text verbatim; change only where the paragraph breaks fall."
	}
}
