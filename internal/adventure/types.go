package adventure

import "strings"

// ChapterType is the tagged variant used in place of the source's isinstance
// checks (see repository design notes). Canonical() is the single place
// casing is normalized; every comparison and storage site routes through it.
type ChapterType string

const (
	ChapterStory      ChapterType = "story"
	ChapterLesson     ChapterType = "lesson"
	ChapterReflect    ChapterType = "reflect"
	ChapterConclusion ChapterType = "conclusion"
)

// Canonical returns the lowercased form used for comparison and storage.
func (t ChapterType) Canonical() ChapterType {
	return ChapterType(strings.ToLower(string(t)))
}

func (t ChapterType) Valid() bool {
	switch t.Canonical() {
	case ChapterStory, ChapterLesson, ChapterReflect, ChapterConclusion:
		return true
	default:
		return false
	}
}

// Agency is the first-chapter commitment threaded through the rest of the
// adventure. Set exactly once, in chapter 1, and read-only thereafter.
type Agency struct {
	Category     string `json:"category"`
	Name         string `json:"name"`
	VisualDetails string `json:"visual_details"`
	ChoiceText   string `json:"choice_text"`
}

const (
	AgencyCompanion   = "companion"
	AgencyAbility     = "ability"
	AgencyArtifact    = "artifact"
	AgencyProfession  = "profession"
)

// Answer is one option of a LessonQuestion.
type Answer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// LessonQuestion is a curated multiple-choice question drawn from the lesson
// bank.
type LessonQuestion struct {
	Topic        string   `json:"topic"`
	QuestionText string   `json:"question_text"`
	Answers      []Answer `json:"answers"`
	Explanation  string   `json:"explanation"`
	Difficulty   string   `json:"difficulty"`
}

// Response is a tagged variant: StoryResponse or LessonResponse.
type Response interface {
	isResponse()
}

type StoryResponse struct {
	ChosenPath string `json:"chosen_path"`
	ChoiceText string `json:"choice_text"`
}

func (StoryResponse) isResponse() {}

type LessonResponse struct {
	ChosenAnswerText string `json:"chosen_answer_text"`
	IsCorrect        bool   `json:"is_correct"`
}

func (LessonResponse) isResponse() {}

// Chapter is one entry of AdventureState.Chapters.
type Chapter struct {
	ChapterNumber int             `json:"chapter_number"`
	ChapterType   ChapterType     `json:"chapter_type"`
	Content       string          `json:"content"`
	Question      *LessonQuestion `json:"question,omitempty"`
	Response      Response        `json:"-"`
	ChosenPath    string          `json:"chosen_path,omitempty"`
}

// NarrativeElements is the category-scoped selection used in prompt
// building ("selected_narrative_elements" in the data model).
type NarrativeElements struct {
	Settings   []string `json:"settings"`
	Themes     []string `json:"themes"`
	PlotTwists []string `json:"plot_twists"`
}

// SensoryDetails is "selected_sensory_details" in the data model.
type SensoryDetails struct {
	Visuals []string `json:"visuals"`
	Sounds  []string `json:"sounds"`
	Smells  []string `json:"smells"`
}
