// Package choice implements the Choice Processor (C6): applying a user's
// choice to adventure state and building the deferred summary/visual tasks
// that the Stream Handler launches once streaming has finished.
package choice

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/llmcontracts"
	"learningodyssey/internal/llmgateway"
)

// Gateway is the narrow slice of llmgateway.Gateway the processor needs for
// its deferred tasks.
type Gateway interface {
	Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error)
}

type Processor struct {
	gateway Gateway
	logger  *slog.Logger
}

func New(gateway Gateway, logger *slog.Logger) *Processor {
	return &Processor{gateway: gateway, logger: logger}
}

// agencyChoicePattern extracts bracketed visual detail appended to a first
// chapter agency option, e.g. "a weathered fox [russet fur, a torn ear]".
var agencyChoicePattern = regexp.MustCompile(`^(.*?)\s*\[(.*)\]\s*$`)

// ApplyStoryChoice records a StoryResponse on the last chapter, including any
// bracketed visual detail. For chapter 1, it additionally extracts the
// agency name/visual_details from the choice text and commits them to state
// together with the category the caller passes in.
func (p *Processor) ApplyStoryChoice(state *adventure.AdventureState, category, chosenPath, choiceText string) error {
	state.Lock()
	defer state.Unlock()

	if len(state.Chapters) == 0 {
		return fmt.Errorf("choice processor: no chapter to record story choice against")
	}

	state.RecordResponse(adventure.StoryResponse{ChosenPath: chosenPath, ChoiceText: choiceText})
	current := state.Chapters[len(state.Chapters)-1]

	if current.ChapterNumber == 1 {
		if _, exists := state.Agency(); !exists {
			name := choiceText
			visualDetails := ""
			if m := agencyChoicePattern.FindStringSubmatch(choiceText); m != nil {
				name = strings.TrimSpace(m[1])
				visualDetails = strings.TrimSpace(m[2])
			}
			state.SetAgency(adventure.Agency{
				Category:      category,
				Name:          name,
				VisualDetails: visualDetails,
				ChoiceText:    choiceText,
			})
		}
	}

	p.enqueueDeferredTasks(state, current, choiceText, "story choice")
	return nil
}

// ApplyLessonAnswer validates answerIndex against the active LESSON
// chapter's question and records a LessonResponse.
func (p *Processor) ApplyLessonAnswer(state *adventure.AdventureState, answerIndex int) error {
	state.Lock()
	defer state.Unlock()

	if len(state.Chapters) == 0 {
		return fmt.Errorf("choice processor: no chapter to record lesson answer against")
	}
	current := &state.Chapters[len(state.Chapters)-1]
	if current.Question == nil {
		return fmt.Errorf("choice processor: chapter %d has no question", current.ChapterNumber)
	}
	if answerIndex < 0 || answerIndex >= len(current.Question.Answers) {
		return fmt.Errorf("choice processor: answer index %d out of range [0,%d)", answerIndex, len(current.Question.Answers))
	}
	answer := current.Question.Answers[answerIndex]
	current.Response = adventure.LessonResponse{ChosenAnswerText: answer.Text, IsCorrect: answer.IsCorrect}
	p.enqueueDeferredTasks(state, *current, answer.Text, "lesson answer")
	return nil
}

// ApplyRevealSummary treats the CONCLUSION chapter as having responded with
// a placeholder so the uniform post-response pipeline (deferred tasks) runs
// for it too.
func (p *Processor) ApplyRevealSummary(state *adventure.AdventureState) error {
	state.Lock()
	defer state.Unlock()

	if len(state.Chapters) == 0 {
		return fmt.Errorf("choice processor: no chapter to reveal summary against")
	}
	state.RecordResponse(adventure.StoryResponse{ChosenPath: "end_of_story", ChoiceText: "End of story"})
	current := state.Chapters[len(state.Chapters)-1]
	p.enqueueDeferredTasks(state, current, "End of story", "reveal summary")
	return nil
}

// enqueueDeferredTasks records the two deferred task factories for the just
// -answered chapter onto state.DeferredSummaryTasks. Caller must already
// hold the lock. The Stream Handler is responsible for not invoking these
// until streaming of the chapter has completed.
func (p *Processor) enqueueDeferredTasks(state *adventure.AdventureState, chapter adventure.Chapter, choiceText, choiceContext string) {
	state.DeferredSummaryTasks = append(state.DeferredSummaryTasks,
		p.BuildSummaryTask(state, chapter.ChapterNumber, chapter.Content, choiceText, choiceContext),
		p.BuildCharacterVisualsTask(state, chapter.ChapterNumber, chapter.Content),
	)
}

// ParseStoryChosenPath parses the wire form of chosen_path ("A"|"B"|"C").
func ParseStoryChosenPath(raw string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "A", "B", "C":
		return strings.ToUpper(strings.TrimSpace(raw)), nil
	default:
		return "", fmt.Errorf("choice processor: invalid chosen_path %q", raw)
	}
}

// ParseLessonAnswerIndex parses the wire form of chosen_path for a lesson
// answer (an integer index as a string).
func ParseLessonAnswerIndex(raw string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("choice processor: chosen_path %q is not an integer lesson index", raw)
	}
	return idx, nil
}

// chapterSummaryFallback is used when generate_chapter_summary fails; the
// adventure must never block or crash on a background-task failure.
func chapterSummaryFallback(chapterNumber int) string {
	return fmt.Sprintf("Summary for Chapter %d", chapterNumber)
}

// BuildSummaryTask builds the deferred generate_chapter_summary task
// factory. It MUST NOT be invoked until streaming of the current chapter
// has completed; the Stream Handler is responsible for that timing.
func (p *Processor) BuildSummaryTask(state *adventure.AdventureState, chapterNumber int, content, choiceText, choiceContext string) adventure.DeferredTask {
	return func(ctx context.Context) error {
		prompt := fmt.Sprintf("Chapter content:\n%s\n\nReader's choice: %s\nContext: %s", content, choiceText, choiceContext)
		raw, err := p.gateway.Complete(ctx, llmgateway.CompletionRequest{
			System:  llmcontracts.ChapterSummaryPrompt,
			Prompt:  prompt,
			UseCase: llmgateway.UseCaseSummaryGeneration,
		})
		title, summary := "", ""
		if err == nil {
			title, summary, err = llmcontracts.ParseChapterSummary(raw)
		}
		state.Lock()
		defer state.Unlock()
		if err != nil {
			failure := &adventure.SummaryTaskFailure{ChapterNumber: chapterNumber, Cause: err}
			if p.logger != nil {
				p.logger.Warn("chapter summary generation failed, using placeholder", slog.Int("chapter", chapterNumber), slog.String("error", failure.Error()))
			}
			state.AddSummary(fmt.Sprintf("Chapter %d", chapterNumber), chapterSummaryFallback(chapterNumber))
			return nil
		}
		state.AddSummary(title, summary)
		return nil
	}
}

// BuildCharacterVisualsTask builds the deferred update_character_visuals
// task factory. On failure, character_visuals is left unchanged.
func (p *Processor) BuildCharacterVisualsTask(state *adventure.AdventureState, chapterNumber int, chapterContent string) adventure.DeferredTask {
	return func(ctx context.Context) error {
		raw, err := p.gateway.Complete(ctx, llmgateway.CompletionRequest{
			System:  llmcontracts.CharacterVisualUpdatePrompt,
			Prompt:  chapterContent,
			UseCase: llmgateway.UseCaseCharacterVisualUpdate,
		})
		var delta map[string]string
		if err == nil {
			delta, err = llmcontracts.ParseCharacterVisuals(raw)
		}
		if err != nil {
			failure := &adventure.SummaryTaskFailure{ChapterNumber: chapterNumber, Cause: err}
			if p.logger != nil {
				p.logger.Warn("character visual update failed, leaving character_visuals unchanged", slog.Int("chapter", chapterNumber), slog.String("error", failure.Error()))
			}
			return nil
		}

		state.Lock()
		defer state.Unlock()
		for name, visual := range delta {
			p.logClassification(state, chapterNumber, name, visual)
		}
		state.UpdateCharacterVisuals(delta)
		return nil
	}
}

// logClassification logs whether a character-visual entry is new, updated,
// or unchanged relative to the state the caller already holds the lock for.
func (p *Processor) logClassification(state *adventure.AdventureState, chapterNumber int, name, visual string) {
	if p.logger == nil {
		return
	}
	existing, had := state.CharacterVisuals[name]
	classification := "NEW"
	switch {
	case !had:
		classification = "NEW"
	case existing == visual:
		classification = "UNCHANGED"
	default:
		classification = "UPDATED"
	}
	p.logger.Debug("character visual", slog.Int("chapter", chapterNumber), slog.String("character", name), slog.String("classification", classification))
}
