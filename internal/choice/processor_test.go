package choice

import (
	"context"
	"errors"
	"testing"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/llmgateway"
)

type stubGateway struct {
	response string
	err      error
}

func (g *stubGateway) Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newChapter1State() *adventure.AdventureState {
	s := adventure.New(10, nil, "a tinker in a patched coat")
	s.AppendChapter(adventure.Chapter{ChapterNumber: 1, ChapterType: adventure.ChapterStory, Content: "..."})
	return s
}

func TestApplyStoryChoiceChapter1CommitsAgencyWithVisualDetail(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := newChapter1State()

	err := p.ApplyStoryChoice(state, adventure.AgencyArtifact, "A", "a brass compass [etched with constellations]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agency, ok := state.Agency()
	if !ok {
		t.Fatalf("expected agency committed")
	}
	if agency.Name != "a brass compass" || agency.VisualDetails != "etched with constellations" {
		t.Fatalf("unexpected agency: %+v", agency)
	}
	resp, ok := state.Chapters[0].Response.(adventure.StoryResponse)
	if !ok || resp.ChoiceText != "a brass compass [etched with constellations]" {
		t.Fatalf("expected full choice text recorded, got %+v", state.Chapters[0].Response)
	}
}

func TestApplyStoryChoiceNonFirstChapterDoesNotTouchAgency(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := adventure.New(10, nil, "desc")
	state.AppendChapter(adventure.Chapter{ChapterNumber: 2, ChapterType: adventure.ChapterStory})

	if err := p.ApplyStoryChoice(state, "", "A", "go left"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := state.Agency(); ok {
		t.Fatalf("expected no agency committed for non-first chapter")
	}
}

func TestApplyLessonAnswerValidatesIndexAndComputesCorrectness(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := adventure.New(10, nil, "desc")
	state.AppendChapter(adventure.Chapter{
		ChapterNumber: 2,
		ChapterType:   adventure.ChapterLesson,
		Question: &adventure.LessonQuestion{
			Answers: []adventure.Answer{{Text: "wrong", IsCorrect: false}, {Text: "right", IsCorrect: true}},
		},
	})

	if err := p.ApplyLessonAnswer(state, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := state.Chapters[0].Response.(adventure.LessonResponse)
	if !resp.IsCorrect || resp.ChosenAnswerText != "right" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if err := p.ApplyLessonAnswer(state, 5); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestApplyRevealSummaryRecordsPlaceholderResponse(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := adventure.New(10, nil, "desc")
	state.AppendChapter(adventure.Chapter{ChapterNumber: 10, ChapterType: adventure.ChapterConclusion})

	if err := p.ApplyRevealSummary(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := state.Chapters[0].Response.(adventure.StoryResponse)
	if resp.ChosenPath != "end_of_story" || resp.ChoiceText != "End of story" {
		t.Fatalf("unexpected placeholder response: %+v", resp)
	}
}

func TestBuildSummaryTaskParsesContractOnSuccess(t *testing.T) {
	gw := &stubGateway{response: "TITLE: A Spark of Brass\nSUMMARY: Something happened."}
	p := New(gw, nil)
	state := adventure.New(10, nil, "desc")

	task := p.BuildSummaryTask(state, 1, "content", "choice", "context")
	if err := task(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.SummaryChapterTitles) != 1 || state.SummaryChapterTitles[0] != "A Spark of Brass" {
		t.Fatalf("unexpected titles: %+v", state.SummaryChapterTitles)
	}
	if len(state.ChapterSummaries) != 1 || state.ChapterSummaries[0] != "Something happened." {
		t.Fatalf("unexpected summaries: %+v", state.ChapterSummaries)
	}
}

func TestBuildSummaryTaskFallsBackToPlaceholderOnFailure(t *testing.T) {
	gw := &stubGateway{err: errors.New("gateway down")}
	p := New(gw, nil)
	state := adventure.New(10, nil, "desc")

	task := p.BuildSummaryTask(state, 3, "content", "choice", "context")
	if err := task(context.Background()); err != nil {
		t.Fatalf("deferred tasks must not return an error on LLM failure: %v", err)
	}
	if state.ChapterSummaries[0] != chapterSummaryFallback(3) {
		t.Fatalf("expected placeholder fallback, got %q", state.ChapterSummaries[0])
	}
}

func TestBuildCharacterVisualsTaskMergesOnSuccess(t *testing.T) {
	gw := &stubGateway{response: `{"Mira": "a scarred adventurer"}`}
	p := New(gw, nil)
	state := adventure.New(10, nil, "desc")

	task := p.BuildCharacterVisualsTask(state, 1, "content")
	if err := task(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.CharacterVisuals["Mira"] != "a scarred adventurer" {
		t.Fatalf("unexpected character visuals: %+v", state.CharacterVisuals)
	}
}

func TestBuildCharacterVisualsTaskLeavesUnchangedOnFailure(t *testing.T) {
	gw := &stubGateway{err: errors.New("gateway down")}
	p := New(gw, nil)
	state := adventure.New(10, nil, "desc")
	state.CharacterVisuals["Mira"] = "original"

	task := p.BuildCharacterVisualsTask(state, 1, "content")
	if err := task(context.Background()); err != nil {
		t.Fatalf("deferred tasks must not return an error on LLM failure: %v", err)
	}
	if state.CharacterVisuals["Mira"] != "original" {
		t.Fatalf("expected character_visuals unchanged on failure, got %+v", state.CharacterVisuals)
	}
}

func TestApplyStoryChoiceEnqueuesDeferredTasksRegardlessOfChapterNumber(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := adventure.New(10, nil, "desc")
	state.AppendChapter(adventure.Chapter{ChapterNumber: 3, ChapterType: adventure.ChapterStory})

	if err := p.ApplyStoryChoice(state, "", "A", "go left"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.DeferredSummaryTasks) != 2 {
		t.Fatalf("expected summary + visual deferred tasks enqueued, got %d", len(state.DeferredSummaryTasks))
	}
}

func TestApplyLessonAnswerEnqueuesDeferredTasks(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := adventure.New(10, nil, "desc")
	state.AppendChapter(adventure.Chapter{
		ChapterNumber: 2, ChapterType: adventure.ChapterLesson,
		Question: &adventure.LessonQuestion{Answers: []adventure.Answer{{Text: "a", IsCorrect: true}}},
	})

	if err := p.ApplyLessonAnswer(state, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.DeferredSummaryTasks) != 2 {
		t.Fatalf("expected 2 deferred tasks, got %d", len(state.DeferredSummaryTasks))
	}
}

func TestApplyRevealSummaryEnqueuesDeferredTasks(t *testing.T) {
	p := New(&stubGateway{}, nil)
	state := adventure.New(10, nil, "desc")
	state.AppendChapter(adventure.Chapter{ChapterNumber: 10, ChapterType: adventure.ChapterConclusion})

	if err := p.ApplyRevealSummary(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.DeferredSummaryTasks) != 2 {
		t.Fatalf("expected 2 deferred tasks, got %d", len(state.DeferredSummaryTasks))
	}
}

func TestParseStoryChosenPathAndLessonAnswerIndex(t *testing.T) {
	if _, err := ParseStoryChosenPath("D"); err == nil {
		t.Fatalf("expected error for invalid chosen_path")
	}
	if v, err := ParseStoryChosenPath("b"); err != nil || v != "B" {
		t.Fatalf("expected normalized B, got %q err=%v", v, err)
	}
	if idx, err := ParseLessonAnswerIndex("2"); err != nil || idx != 2 {
		t.Fatalf("expected index 2, got %d err=%v", idx, err)
	}
	if _, err := ParseLessonAnswerIndex("not-a-number"); err == nil {
		t.Fatalf("expected error for non-integer lesson index")
	}
}
