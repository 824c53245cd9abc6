package llmgateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/llmgateway/providers"
)

func TestCompleteRoutesByTier(t *testing.T) {
	reasoning := &providers.Mock{Responses: []string{"story text"}}
	utility := &providers.Mock{Responses: []string{"summary text"}}
	gw := New(reasoning, utility, nil)

	out, err := gw.Complete(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseStoryGeneration})
	if err != nil || out != "story text" {
		t.Fatalf("expected story text from reasoning provider, got %q err=%v", out, err)
	}
	if len(reasoning.Calls) != 1 || len(utility.Calls) != 0 {
		t.Fatalf("expected story_generation routed to reasoning provider only")
	}

	out, err = gw.Complete(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseSummaryGeneration})
	if err != nil || out != "summary text" {
		t.Fatalf("expected summary text from utility provider, got %q err=%v", out, err)
	}
	if len(utility.Calls) != 1 {
		t.Fatalf("expected summary_generation routed to utility provider")
	}
}

func TestCompletePermanentFailureAfterRetriesExhausted(t *testing.T) {
	reasoning := &providers.Mock{Err: errors.New("rate limit exceeded")}
	gw := New(reasoning, &providers.Mock{}, nil)
	gw.policy.Sleep = noSleep
	gw.policy.MaxAttempts = 2

	_, err := gw.Complete(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseStoryGeneration})
	if err == nil {
		t.Fatalf("expected error")
	}
	var permanent *adventure.LLMPermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected *adventure.LLMPermanentError after exhausting retries, got %T: %v", err, err)
	}
}

func TestCompleteNonTransientFailsImmediately(t *testing.T) {
	reasoning := &providers.Mock{Err: errors.New("invalid api key")}
	gw := New(reasoning, &providers.Mock{}, nil)
	gw.policy.Sleep = noSleep

	_, err := gw.Complete(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseStoryGeneration})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(reasoning.Calls) != 1 {
		t.Fatalf("expected exactly one attempt for a non-transient error, got %d", len(reasoning.Calls))
	}
}

// TestStreamReformatTriggeredOnDenseUnbrokenResponse covers the S5 scenario:
// a response with no double-newline and many sentences must trigger
// reformatWithRetries with the FULL response, and the delivered text must
// contain paragraph breaks.
func TestStreamReformatTriggeredOnDenseUnbrokenResponse(t *testing.T) {
	var sentences []string
	for i := 0; i < 9; i++ {
		sentences = append(sentences, "The lantern flickered once more in the dark")
	}
	dense := strings.Join(sentences, ". ") + "."
	if strings.Contains(dense, "\n\n") {
		t.Fatalf("test fixture must not contain a double newline")
	}

	reasoning := &providers.Mock{Responses: []string{dense}, StreamChunk: 40}
	utility := &providers.Mock{Responses: []string{"Reformatted.\n\nWith paragraphs."}}
	gw := New(reasoning, utility, nil)

	var delivered strings.Builder
	err := gw.Stream(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseStoryGeneration}, func(s string) {
		delivered.WriteString(s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(utility.Calls) != 1 {
		t.Fatalf("expected exactly one reformat call, got %d", len(utility.Calls))
	}
	if !strings.Contains(utility.Calls[0].Prompt, dense) {
		t.Fatalf("expected reformat prompt to contain the FULL response, not just the initial buffer")
	}
	if !strings.Contains(delivered.String(), "\n\n") {
		t.Fatalf("expected delivered text to contain paragraph breaks, got %q", delivered.String())
	}
}

func TestStreamPassesThroughWellFormattedResponse(t *testing.T) {
	text := "First paragraph of the tale.\n\nSecond paragraph follows along nicely."
	reasoning := &providers.Mock{Responses: []string{text}, StreamChunk: 10}
	utility := &providers.Mock{}
	gw := New(reasoning, utility, nil)

	var delivered strings.Builder
	err := gw.Stream(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseStoryGeneration}, func(s string) {
		delivered.WriteString(s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(utility.Calls) != 0 {
		t.Fatalf("expected no reformat call for well-formatted text")
	}
	if delivered.String() != text {
		t.Fatalf("expected passthrough delivery to equal original text, got %q", delivered.String())
	}
}

func TestStreamReformatFailureReleasesOriginalUnchanged(t *testing.T) {
	dense := strings.Repeat("One. Two. Three. Four. Five. ", 5)
	reasoning := &providers.Mock{Responses: []string{dense}}
	utility := &providers.Mock{Err: errors.New("utility provider down")}
	gw := New(reasoning, utility, nil)

	var delivered strings.Builder
	err := gw.Stream(context.Background(), CompletionRequest{Prompt: "p", UseCase: UseCaseStoryGeneration}, func(s string) {
		delivered.WriteString(s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered.String() != dense {
		t.Fatalf("expected original text released unchanged on reformat failure")
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return nil
}
