package adventure

import (
	"context"
	"sync"
)

// DeferredTask is a unit of work recorded at choice-time but invoked only
// after streaming of the chapter that produced it has completed (see the
// Stream Handler). Keeping this as a plain function value, recorded on the
// state rather than launched as a goroutine immediately, is what lets the
// Choice Processor stay decoupled from the streaming loop's timing.
type DeferredTask func(ctx context.Context) error

// PendingTask is a handle to a launched DeferredTask, tracked in
// PendingSummaryTasks until it is drained at reveal_summary time.
type PendingTask struct {
	ChapterNumber int
	Label         string
	Done          chan struct{}
	Err           error
}

func (t *PendingTask) Wait(ctx context.Context) error {
	select {
	case <-t.Done:
		return t.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AdventureState is the single source of truth for one adventure. It is
// constructed at session start, or reconstructed from the store on
// resumption, and mutated only by the Choice Processor's critical sections
// and the Stream Handler's append-chapter step.
type AdventureState struct {
	StoryLength int

	PlannedChapterTypes []ChapterType
	Chapters            []Chapter

	ChapterSummaries     []string
	SummaryChapterTitles []string

	Metadata map[string]any

	SelectedNarrativeElements NarrativeElements
	SelectedSensoryDetails    SensoryDetails
	ProtagonistDescription    string
	CharacterVisuals          map[string]string

	PendingSummaryTasks  []*PendingTask
	DeferredSummaryTasks []DeferredTask

	// summaryMu guards ChapterSummaries, SummaryChapterTitles,
	// CharacterVisuals and PendingSummaryTasks. Every mutator below
	// documents the precondition that the caller already holds it; readers
	// that need a consistent snapshot (serialization before store) take it
	// briefly too. A field mutex instead of a module-level singleton, so
	// state lifetime tracks the AdventureState's own lifetime.
	summaryMu sync.Mutex
}

// Lock / Unlock expose summary_lock to callers that must hold it across a
// mutating operation (Choice Processor critical sections, Stream Handler's
// deferred-task execution).
func (s *AdventureState) Lock()   { s.summaryMu.Lock() }
func (s *AdventureState) Unlock() { s.summaryMu.Unlock() }

// New constructs a fresh AdventureState for a new adventure.
func New(storyLength int, plannedTypes []ChapterType, protagonistDescription string) *AdventureState {
	return &AdventureState{
		StoryLength:            storyLength,
		PlannedChapterTypes:    plannedTypes,
		Chapters:               make([]Chapter, 0, storyLength),
		ChapterSummaries:       make([]string, 0, storyLength),
		SummaryChapterTitles:   make([]string, 0, storyLength),
		Metadata:               map[string]any{"difficulty": "Reasonably Challenging"},
		ProtagonistDescription: protagonistDescription,
		CharacterVisuals:       make(map[string]string),
	}
}

// AppendChapter appends a completed (or in-flight) chapter. Caller must
// hold the lock.
func (s *AdventureState) AppendChapter(ch Chapter) {
	ch.ChapterType = ch.ChapterType.Canonical()
	if ch.ChapterNumber == s.StoryLength {
		ch.ChapterType = ChapterConclusion
	}
	s.Chapters = append(s.Chapters, ch)
}

// RecordResponse attaches a Response to the last chapter. Caller must hold
// the lock.
func (s *AdventureState) RecordResponse(resp Response) {
	if len(s.Chapters) == 0 {
		return
	}
	s.Chapters[len(s.Chapters)-1].Response = resp
}

// AddSummary records a generated chapter summary and title. Caller must
// hold the lock.
func (s *AdventureState) AddSummary(title, text string) {
	s.SummaryChapterTitles = append(s.SummaryChapterTitles, title)
	s.ChapterSummaries = append(s.ChapterSummaries, text)
}

// UpdateCharacterVisuals merges delta into CharacterVisuals. Caller must
// hold the lock.
func (s *AdventureState) UpdateCharacterVisuals(delta map[string]string) {
	if s.CharacterVisuals == nil {
		s.CharacterVisuals = make(map[string]string)
	}
	for name, visual := range delta {
		s.CharacterVisuals[name] = visual
	}
}

// Agency returns the committed agency, if any. metadata.agency is present
// by the end of chapter 1 and never changes afterward (invariant 5).
func (s *AdventureState) Agency() (Agency, bool) {
	raw, ok := s.Metadata["agency"]
	if !ok {
		return Agency{}, false
	}
	agency, ok := raw.(Agency)
	return agency, ok
}

// SetAgency commits the agency exactly once. Subsequent calls are no-ops,
// preserving invariant 5 ("never changes").
func (s *AdventureState) SetAgency(a Agency) {
	if _, exists := s.Agency(); exists {
		return
	}
	s.Metadata["agency"] = a
}

// VisibleChapterCount is the counting rule in §4.1: user-visible counts
// exclude any synthetic SUMMARY marker and never exceed StoryLength.
func (s *AdventureState) VisibleChapterCount() int {
	if len(s.Chapters) > s.StoryLength {
		return s.StoryLength
	}
	return len(s.Chapters)
}

// Statistics summarizes completed responses for S4-style reporting.
type Statistics struct {
	ChaptersCompleted int
	QuestionsAnswered int
	CorrectAnswers    int
}

func (s *AdventureState) Statistics() Statistics {
	stats := Statistics{ChaptersCompleted: s.VisibleChapterCount()}
	for _, ch := range s.Chapters {
		if lr, ok := ch.Response.(LessonResponse); ok {
			stats.QuestionsAnswered++
			if lr.IsCorrect {
				stats.CorrectAnswers++
			}
		}
	}
	return stats
}

// UsedQuestions returns the set of question texts already asked, so the
// Choice Processor / Prompt Builder can enforce "no question appears twice"
// (invariant 4).
func (s *AdventureState) UsedQuestions() map[string]bool {
	used := make(map[string]bool)
	for _, ch := range s.Chapters {
		if ch.Question != nil {
			used[ch.Question.QuestionText] = true
		}
	}
	return used
}
