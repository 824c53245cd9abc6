package session

import (
	"fmt"
	"testing"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/content"
)

type fakeChoice struct {
	storyCalls  []string
	lessonCalls []int
	revealCalls int
	failWith    error
}

func (f *fakeChoice) ApplyStoryChoice(state *adventure.AdventureState, category, chosenPath, choiceText string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.storyCalls = append(f.storyCalls, chosenPath+":"+choiceText)
	return nil
}

func (f *fakeChoice) ApplyLessonAnswer(state *adventure.AdventureState, answerIndex int) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.lessonCalls = append(f.lessonCalls, answerIndex)
	return nil
}

func (f *fakeChoice) ApplyRevealSummary(state *adventure.AdventureState) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.revealCalls++
	return nil
}

func TestRequiresChoice(t *testing.T) {
	cases := map[adventure.ChapterType]bool{
		adventure.ChapterStory:      true,
		adventure.ChapterLesson:     true,
		adventure.ChapterReflect:    false,
		adventure.ChapterConclusion: false,
		"STORY":                     true,
		"Reflect":                   false,
	}
	for ct, want := range cases {
		if got := requiresChoice(ct); got != want {
			t.Fatalf("requiresChoice(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestLastLessonOutcomeFindsMostRecentAnsweredLesson(t *testing.T) {
	state := adventure.New(10, nil, "a tinker in a patched coat")
	q1 := &adventure.LessonQuestion{Topic: "fractions", QuestionText: "what is 1/2 + 1/4?"}
	state.AppendChapter(adventure.Chapter{ChapterNumber: 1, ChapterType: adventure.ChapterStory, Content: "intro"})
	state.RecordResponse(adventure.StoryResponse{ChosenPath: "A", ChoiceText: "a fox [russet fur]"})
	state.AppendChapter(adventure.Chapter{ChapterNumber: 2, ChapterType: adventure.ChapterLesson, Content: "lesson", Question: q1})
	state.RecordResponse(adventure.LessonResponse{ChosenAnswerText: "3/4", IsCorrect: true})

	q, correct := lastLessonOutcome(state)
	if q == nil || q.QuestionText != q1.QuestionText {
		t.Fatalf("expected last lesson question %+v, got %+v", q1, q)
	}
	if !correct {
		t.Fatalf("expected correct=true, got false")
	}
}

func TestLastLessonOutcomeWithNoPriorLessonReturnsNil(t *testing.T) {
	state := adventure.New(10, nil, "a tinker in a patched coat")
	state.AppendChapter(adventure.Chapter{ChapterNumber: 1, ChapterType: adventure.ChapterStory, Content: "intro"})

	q, correct := lastLessonOutcome(state)
	if q != nil || correct {
		t.Fatalf("expected (nil, false), got (%+v, %v)", q, correct)
	}
}

func TestPickProtagonistIsDeterministicAndInRange(t *testing.T) {
	category := content.StoryCategory{
		ProtagonistDescriptionChoices: []string{"a tinker", "a star-chaser", "a quiet cartographer"},
	}
	for _, seed := range []int64{0, 1, -1, -9999999999, 9223372036854775807} {
		got := pickProtagonist(category, seed)
		found := false
		for _, c := range category.ProtagonistDescriptionChoices {
			if c == got {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("pickProtagonist(seed=%d) = %q, not among choices", seed, got)
		}
		if got2 := pickProtagonist(category, seed); got2 != got {
			t.Fatalf("pickProtagonist not deterministic for seed=%d: %q vs %q", seed, got, got2)
		}
	}
}

func TestPickProtagonistWithNoChoicesReturnsEmpty(t *testing.T) {
	if got := pickProtagonist(content.StoryCategory{}, 42); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestApplyChoiceRoutesStoryAndLesson(t *testing.T) {
	state := adventure.New(10, nil, "a tinker in a patched coat")
	fc := &fakeChoice{}
	c := &Coordinator{choice: fc}
	category := content.StoryCategory{Name: "enchanted_forest"}

	if err := c.applyChoice(state, category, adventure.ChapterStory, inboundEnvelope{ChosenPath: "A", ChoiceText: "a fox [russet fur]"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.storyCalls) != 1 || fc.storyCalls[0] != "A:a fox [russet fur]" {
		t.Fatalf("unexpected story calls: %+v", fc.storyCalls)
	}

	if err := c.applyChoice(state, category, adventure.ChapterLesson, inboundEnvelope{ChosenPath: "2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.lessonCalls) != 1 || fc.lessonCalls[0] != 2 {
		t.Fatalf("unexpected lesson calls: %+v", fc.lessonCalls)
	}
}

func TestApplyChoiceRejectsChoiceForNonChoiceChapterType(t *testing.T) {
	state := adventure.New(10, nil, "a tinker in a patched coat")
	c := &Coordinator{choice: &fakeChoice{}}
	category := content.StoryCategory{Name: "enchanted_forest"}

	err := c.applyChoice(state, category, adventure.ChapterReflect, inboundEnvelope{ChosenPath: "A"})
	if err == nil {
		t.Fatal("expected error for a REFLECT chapter, got nil")
	}
}

func TestApplyChoiceRejectsMalformedStoryChosenPath(t *testing.T) {
	state := adventure.New(10, nil, "a tinker in a patched coat")
	c := &Coordinator{choice: &fakeChoice{}}
	category := content.StoryCategory{Name: "enchanted_forest"}

	err := c.applyChoice(state, category, adventure.ChapterStory, inboundEnvelope{ChosenPath: "Z"})
	if err == nil {
		t.Fatal("expected error for an invalid chosen_path, got nil")
	}
}

func TestApplyChoicePropagatesProcessorFailure(t *testing.T) {
	state := adventure.New(10, nil, "a tinker in a patched coat")
	fc := &fakeChoice{failWith: fmt.Errorf("boom")}
	c := &Coordinator{choice: fc}
	category := content.StoryCategory{Name: "enchanted_forest"}

	err := c.applyChoice(state, category, adventure.ChapterStory, inboundEnvelope{ChosenPath: "B", ChoiceText: "a lantern"})
	if err == nil {
		t.Fatal("expected propagated processor error, got nil")
	}
}
