package adventure

// Snapshot is the deep, serializable view of AdventureState produced by
// Snapshot() and consumed by Reconstruct(). It deliberately excludes
// PendingSummaryTasks and DeferredSummaryTasks: those are in-process
// handles, not persisted data.
type Snapshot struct {
	StoryLength int `json:"story_length"`

	PlannedChapterTypes []ChapterType      `json:"planned_chapter_types"`
	Chapters            []ChapterSnapshot  `json:"chapters"`

	ChapterSummaries     []string `json:"chapter_summaries"`
	SummaryChapterTitles []string `json:"summary_chapter_titles"`

	Metadata map[string]any `json:"metadata"`

	SelectedNarrativeElements NarrativeElements `json:"selected_narrative_elements"`
	SelectedSensoryDetails    SensoryDetails    `json:"selected_sensory_details"`
	ProtagonistDescription    string            `json:"protagonist_description"`
	CharacterVisuals          map[string]string `json:"character_visuals"`
}

type ChapterSnapshot struct {
	ChapterNumber int             `json:"chapter_number"`
	ChapterType   ChapterType     `json:"chapter_type"`
	Content       string          `json:"content"`
	Question      *LessonQuestion `json:"question,omitempty"`
	ChosenPath    string          `json:"chosen_path,omitempty"`

	ResponseKind           string  `json:"response_kind,omitempty"`
	StoryChosenPath        *string `json:"story_chosen_path,omitempty"`
	StoryChoiceText        *string `json:"story_choice_text,omitempty"`
	LessonChosenAnswerText *string `json:"lesson_chosen_answer_text,omitempty"`
	LessonIsCorrect        *bool   `json:"lesson_is_correct,omitempty"`
}

// Snapshot produces a deep, serializable copy of the state. The caller
// should hold the lock if a consistent view across ChapterSummaries /
// SummaryChapterTitles / CharacterVisuals is required (e.g. immediately
// before a store write).
func (s *AdventureState) Snapshot() Snapshot {
	snap := Snapshot{
		StoryLength:               s.StoryLength,
		PlannedChapterTypes:       append([]ChapterType(nil), s.PlannedChapterTypes...),
		ChapterSummaries:          append([]string(nil), s.ChapterSummaries...),
		SummaryChapterTitles:      append([]string(nil), s.SummaryChapterTitles...),
		Metadata:                  copyMetadata(s.Metadata),
		SelectedNarrativeElements: s.SelectedNarrativeElements,
		SelectedSensoryDetails:    s.SelectedSensoryDetails,
		ProtagonistDescription:    s.ProtagonistDescription,
		CharacterVisuals:          copyStringMap(s.CharacterVisuals),
	}

	snap.Chapters = make([]ChapterSnapshot, len(s.Chapters))
	for i, ch := range s.Chapters {
		cs := ChapterSnapshot{
			ChapterNumber: ch.ChapterNumber,
			ChapterType:   ch.ChapterType.Canonical(),
			Content:       ch.Content,
			Question:      ch.Question,
			ChosenPath:    ch.ChosenPath,
		}
		switch r := ch.Response.(type) {
		case StoryResponse:
			cs.ResponseKind = "story"
			cs.StoryChosenPath = &r.ChosenPath
			cs.StoryChoiceText = &r.ChoiceText
		case LessonResponse:
			cs.ResponseKind = "lesson"
			cs.LessonChosenAnswerText = &r.ChosenAnswerText
			cs.LessonIsCorrect = &r.IsCorrect
		}
		snap.Chapters[i] = cs
	}
	return snap
}

// Reconstruct rebuilds an AdventureState from a Snapshot. It is strictly
// read-only with respect to external systems: it never calls the LLM or
// image service, and never mutates persisted storage. Unknown fields are
// ignored, missing required fields are filled with semantically safe
// defaults, chapter-type casing is normalized, and the final chapter is
// coerced to CONCLUSION regardless of the stored value. Recoverable
// problems are returned as StateReconstructionWarning, never as a fatal
// error.
func Reconstruct(snap Snapshot) (*AdventureState, []error) {
	var warnings []error

	storyLength := snap.StoryLength
	if storyLength <= 0 {
		storyLength = 10
		warnings = append(warnings, &StateReconstructionWarning{Field: "story_length", Cause: errMissingDefaulted})
	}

	s := &AdventureState{
		StoryLength:               storyLength,
		PlannedChapterTypes:       append([]ChapterType(nil), snap.PlannedChapterTypes...),
		ChapterSummaries:          append([]string(nil), snap.ChapterSummaries...),
		SummaryChapterTitles:      append([]string(nil), snap.SummaryChapterTitles...),
		Metadata:                  copyMetadata(snap.Metadata),
		SelectedNarrativeElements: snap.SelectedNarrativeElements,
		SelectedSensoryDetails:    snap.SelectedSensoryDetails,
		ProtagonistDescription:    snap.ProtagonistDescription,
		CharacterVisuals:          copyStringMap(snap.CharacterVisuals),
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	if s.CharacterVisuals == nil {
		s.CharacterVisuals = map[string]string{}
	}

	if raw, ok := s.Metadata["agency"]; ok {
		if agency, ok := decodeAgency(raw); ok {
			s.Metadata["agency"] = agency
		} else {
			warnings = append(warnings, &StateReconstructionWarning{Field: "metadata.agency", Cause: errMalformed})
			delete(s.Metadata, "agency")
		}
	}

	s.Chapters = make([]Chapter, len(snap.Chapters))
	for i, cs := range snap.Chapters {
		ch := Chapter{
			ChapterNumber: cs.ChapterNumber,
			ChapterType:   cs.ChapterType.Canonical(),
			Content:       cs.Content,
			Question:      cs.Question,
			ChosenPath:    cs.ChosenPath,
		}
		if !ch.ChapterType.Valid() {
			ch.ChapterType = ChapterStory
			warnings = append(warnings, &StateReconstructionWarning{Field: "chapters[].chapter_type", Cause: errMalformed})
		}
		// §4.1: a chapter at position story_length is CONCLUSION even if
		// the stored value disagrees.
		if ch.ChapterNumber == s.StoryLength {
			ch.ChapterType = ChapterConclusion
		}
		switch cs.ResponseKind {
		case "story":
			if cs.StoryChosenPath != nil && cs.StoryChoiceText != nil {
				ch.Response = StoryResponse{ChosenPath: *cs.StoryChosenPath, ChoiceText: *cs.StoryChoiceText}
			}
		case "lesson":
			if cs.LessonChosenAnswerText != nil && cs.LessonIsCorrect != nil {
				ch.Response = LessonResponse{ChosenAnswerText: *cs.LessonChosenAnswerText, IsCorrect: *cs.LessonIsCorrect}
			}
		}
		s.Chapters[i] = ch
	}

	return s, warnings
}

func decodeAgency(raw any) (Agency, bool) {
	if a, ok := raw.(Agency); ok {
		return a, true
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Agency{}, false
	}
	a := Agency{}
	if v, ok := m["category"].(string); ok {
		a.Category = v
	}
	if v, ok := m["name"].(string); ok {
		a.Name = v
	}
	if v, ok := m["visual_details"].(string); ok {
		a.VisualDetails = v
	}
	if v, ok := m["choice_text"].(string); ok {
		a.ChoiceText = v
	}
	if a.Category == "" && a.Name == "" {
		return Agency{}, false
	}
	return a, true
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
