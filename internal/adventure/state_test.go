package adventure

import "testing"

func TestAppendChapterCoercesFinalToConclusion(t *testing.T) {
	s := New(10, nil, "a wandering scholar")
	s.Lock()
	s.AppendChapter(Chapter{ChapterNumber: 10, ChapterType: ChapterType("LESSON"), Content: "the end"})
	s.Unlock()

	if got := s.Chapters[0].ChapterType; got != ChapterConclusion {
		t.Fatalf("expected final chapter coerced to conclusion, got %q", got)
	}
}

func TestSetAgencyIsOnceOnly(t *testing.T) {
	s := New(10, nil, "")
	s.SetAgency(Agency{Category: AgencyAbility, Name: "Dream Walker"})
	s.SetAgency(Agency{Category: AgencyArtifact, Name: "should not stick"})

	got, ok := s.Agency()
	if !ok {
		t.Fatalf("expected agency to be set")
	}
	if got.Name != "Dream Walker" {
		t.Fatalf("expected first agency to be byte-identical thereafter, got %+v", got)
	}
}

func TestVisibleChapterCountNeverExceedsStoryLength(t *testing.T) {
	s := New(3, nil, "")
	s.Lock()
	for i := 1; i <= 5; i++ {
		s.AppendChapter(Chapter{ChapterNumber: i, ChapterType: ChapterStory})
	}
	s.Unlock()

	if got := s.VisibleChapterCount(); got != 3 {
		t.Fatalf("expected visible count capped at story length 3, got %d", got)
	}
}

func TestStatisticsCountsLessonResponses(t *testing.T) {
	s := New(10, nil, "")
	s.Lock()
	s.AppendChapter(Chapter{ChapterNumber: 1, ChapterType: ChapterLesson, Response: LessonResponse{IsCorrect: true}})
	s.AppendChapter(Chapter{ChapterNumber: 2, ChapterType: ChapterLesson, Response: LessonResponse{IsCorrect: false}})
	s.AppendChapter(Chapter{ChapterNumber: 3, ChapterType: ChapterStory, Response: StoryResponse{ChosenPath: "A"}})
	s.Unlock()

	stats := s.Statistics()
	if stats.QuestionsAnswered != 2 || stats.CorrectAnswers != 1 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestReconstructRoundTrip(t *testing.T) {
	s := New(10, []ChapterType{ChapterStory}, "a tinker of small machines")
	s.Lock()
	s.SetAgency(Agency{Category: AgencyAbility, Name: "Dream Walker", VisualDetails: "ethereal blue cloak", ChoiceText: "As a Dream Walker"})
	s.AppendChapter(Chapter{ChapterNumber: 1, ChapterType: ChapterStory, Content: "once upon a time", Response: StoryResponse{ChosenPath: "A", ChoiceText: "go north"}})
	s.AddSummary("A Bold Start", "Our hero set out north into the unknown.")
	s.UpdateCharacterVisuals(map[string]string{"protagonist": "a tinker in a patched coat"})
	s.Unlock()

	snap := s.Snapshot()
	rebuilt, warnings := Reconstruct(snap)
	if len(warnings) != 0 {
		t.Fatalf("expected clean round trip, got warnings: %v", warnings)
	}

	if rebuilt.ProtagonistDescription != s.ProtagonistDescription {
		t.Fatalf("protagonist description did not round trip")
	}
	agency, ok := rebuilt.Agency()
	if !ok || agency.Name != "Dream Walker" {
		t.Fatalf("agency did not round trip, got %+v ok=%v", agency, ok)
	}
	if len(rebuilt.Chapters) != 1 || rebuilt.Chapters[0].ChapterType != ChapterStory {
		t.Fatalf("chapters did not round trip: %+v", rebuilt.Chapters)
	}
	if rebuilt.CharacterVisuals["protagonist"] != "a tinker in a patched coat" {
		t.Fatalf("character visuals did not round trip")
	}
}

func TestReconstructCoercesFinalChapterRegardlessOfStoredType(t *testing.T) {
	snap := Snapshot{
		StoryLength: 10,
		Chapters: []ChapterSnapshot{
			{ChapterNumber: 10, ChapterType: ChapterType("lesson")},
		},
	}
	rebuilt, _ := Reconstruct(snap)
	if rebuilt.Chapters[0].ChapterType != ChapterConclusion {
		t.Fatalf("expected forced conclusion coercion, got %q", rebuilt.Chapters[0].ChapterType)
	}
}

func TestReconstructDefaultsMissingStoryLength(t *testing.T) {
	rebuilt, warnings := Reconstruct(Snapshot{})
	if rebuilt.StoryLength != 10 {
		t.Fatalf("expected default story length 10, got %d", rebuilt.StoryLength)
	}
	if len(warnings) == 0 {
		t.Fatalf("expected a warning for the defaulted story length")
	}
}
