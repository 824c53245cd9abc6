package llmcontracts

import "testing"

func TestParseChapterSummaryValid(t *testing.T) {
	raw := "TITLE: The Clockwork Garden\nSUMMARY: Mira stepped through the brass gate and found wonders."
	title, summary, err := ParseChapterSummary(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "The Clockwork Garden" {
		t.Fatalf("unexpected title: %q", title)
	}
	if summary != "Mira stepped through the brass gate and found wonders." {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestParseChapterSummaryMissingHeaderFails(t *testing.T) {
	_, _, err := ParseChapterSummary("Here's a summary: Mira found a garden.")
	if err == nil {
		t.Fatalf("expected error for missing headers")
	}
}

func TestParseCharacterVisualsValid(t *testing.T) {
	raw := `{"Mira": "a wiry girl in a patched leather coat"}`
	visuals, err := ParseCharacterVisuals(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if visuals["Mira"] != "a wiry girl in a patched leather coat" {
		t.Fatalf("unexpected visuals: %+v", visuals)
	}
}

func TestParseCharacterVisualsEmptyObjectIsValid(t *testing.T) {
	visuals, err := ParseCharacterVisuals("{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visuals) != 0 {
		t.Fatalf("expected empty map, got %+v", visuals)
	}
}

func TestParseCharacterVisualsMalformedFails(t *testing.T) {
	_, err := ParseCharacterVisuals("Mira wears a coat.")
	if err == nil {
		t.Fatalf("expected error for non-JSON response")
	}
}
