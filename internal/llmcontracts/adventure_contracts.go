package llmcontracts

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ContractChapterSummaryV1    = "CHAPTER_SUMMARY_V1"
	ContractCharacterVisualsV1  = "CHARACTER_VISUALS_V1"
	chapterSummaryTitleHeader   = "TITLE:"
	chapterSummaryContentHeader = "SUMMARY:"
)

// ChapterSummaryPrompt is the system prompt for generate_chapter_summary: it
// requires exact section headers and shows one correct and one incorrect
// example so the response can be parsed deterministically.
const ChapterSummaryPrompt = `You write short chapter summaries for an interactive story engine.

Respond with EXACTLY two lines, in this exact order, and nothing else:
TITLE: <title>
SUMMARY: <summary>

The summary MUST be 70 to 100 words, third person, past tense.

CORRECT example:
TITLE: The Clockwork Garden
SUMMARY: Mira stepped through the brass gate and found the garden humming with tiny gears instead of bees. Each flower ticked in time with her own heartbeat, and when she reached for a silver bloom it unfolded into a key. She pocketed it, certain the locked door at the garden's heart had been waiting for exactly this. Somewhere behind her, the gate clicked shut, sealing the ordinary world outside. She did not look back, and the garden's hum rose half a tone, as if in welcome.

INCORRECT example (missing headers, wrong length, commentary):
Here's a summary of the chapter: Mira found a garden. It was nice.

Output nothing before TITLE: or after the SUMMARY line.`

// ParseChapterSummary parses the two-line contract into (title, summary). An
// error is returned if either header is missing; callers fall back to a
// placeholder summary on error, never panic.
func ParseChapterSummary(raw string) (title string, summary string, err error) {
	lines := strings.SplitN(strings.TrimSpace(raw), "\n", 2)
	if len(lines) < 2 {
		return "", "", fmt.Errorf("chapter summary contract: expected two lines, got %d", len(lines))
	}
	titleLine := strings.TrimSpace(lines[0])
	summaryLine := strings.TrimSpace(lines[1])
	if !strings.HasPrefix(titleLine, chapterSummaryTitleHeader) {
		return "", "", fmt.Errorf("chapter summary contract: missing %q header", chapterSummaryTitleHeader)
	}
	if !strings.HasPrefix(summaryLine, chapterSummaryContentHeader) {
		return "", "", fmt.Errorf("chapter summary contract: missing %q header", chapterSummaryContentHeader)
	}
	title = strings.TrimSpace(strings.TrimPrefix(titleLine, chapterSummaryTitleHeader))
	summary = strings.TrimSpace(strings.TrimPrefix(summaryLine, chapterSummaryContentHeader))
	if title == "" || summary == "" {
		return "", "", fmt.Errorf("chapter summary contract: empty title or summary")
	}
	return title, summary, nil
}

// CharacterVisualUpdatePrompt asks the model to return a strict JSON object
// mapping character name to visual description, and nothing else.
const CharacterVisualUpdatePrompt = `Read the chapter content and identify every named character whose physical
appearance is described or implied.

Respond with EXACTLY one JSON object, nothing else: no markdown, no code
fences, no commentary. Keys are character names exactly as they appear in the
text; values are a concise visual description (clothing, distinguishing
features, posture).

CORRECT example:
{"Mira": "a wiry girl in a patched leather coat, brass goggles pushed up into curly red hair"}

INCORRECT example (prose instead of JSON):
Mira is described as wearing a leather coat.

If no characters have visual descriptions in this chapter, respond with {}.`

// ParseCharacterVisuals decodes the JSON contract into a plain map. Returns
// an error (never a partial map) on malformed JSON so callers can fall back
// to leaving character_visuals unchanged.
func ParseCharacterVisuals(raw string) (map[string]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("character visuals contract: empty response")
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("character visuals contract: %w", err)
	}
	return out, nil
}
