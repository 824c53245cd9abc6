// Package promptbuilder assembles the system and user prompts the LLM
// Gateway sends for each chapter, per the chapter-type rules: STORY offers
// three labeled choices (plus a four-category agency offer in chapter 1),
// LESSON wraps a curated question with the Story Object Method, REFLECT
// follows up on a LESSON with a randomly chosen challenge template, and
// CONCLUSION resolves the adventure's agency with no choices.
package promptbuilder

import (
	"fmt"
	"math/rand"
	"strings"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/content"
)

// Input bundles everything one BuildUserPrompt call needs — the builder
// itself stays stateless so it can be shared across adventures.
type Input struct {
	State         *adventure.AdventureState
	Category      content.StoryCategory
	ChapterNumber int
	ChapterType   adventure.ChapterType
	AdventureTopic string

	// Question is required for LESSON chapters.
	Question *adventure.LessonQuestion
	// PriorQuestion/PriorCorrect are required for REFLECT chapters: the
	// LESSON that immediately preceded this one.
	PriorQuestion *adventure.LessonQuestion
	PriorCorrect  bool

	// Seed makes REFLECT's challenge-template selection reproducible on
	// resumption, mirroring the Chapter Planner's determinism discipline.
	Seed int64
}

type Builder struct{}

func New() *Builder { return &Builder{} }

// BuildSystemPrompt assembles the system prompt: stable for the whole
// adventure — world, rules, protagonist, selected narrative elements.
func (b *Builder) BuildSystemPrompt(state *adventure.AdventureState, category content.StoryCategory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the narrative engine for an interactive educational adventure set in: %s.\n\n", category.Name)
	sb.WriteString("World rules:\n")
	sb.WriteString("- Stay strictly within the established setting, themes, and tone.\n")
	sb.WriteString("- Never break the fourth wall or reference being an AI.\n")
	sb.WriteString("- The protagonist's appearance, once established, never contradicts itself.\n\n")

	if len(state.SelectedNarrativeElements.Settings) > 0 {
		fmt.Fprintf(&sb, "Setting elements in play: %s\n", strings.Join(state.SelectedNarrativeElements.Settings, "; "))
	}
	if len(state.SelectedNarrativeElements.Themes) > 0 {
		fmt.Fprintf(&sb, "Themes in play: %s\n", strings.Join(state.SelectedNarrativeElements.Themes, "; "))
	}
	if len(state.SelectedNarrativeElements.PlotTwists) > 0 {
		fmt.Fprintf(&sb, "Available plot twists (introduce at most one, and only when the phase guidance below invites it): %s\n", strings.Join(state.SelectedNarrativeElements.PlotTwists, "; "))
	}
	if state.ProtagonistDescription != "" {
		fmt.Fprintf(&sb, "\nProtagonist base appearance: %s\n", state.ProtagonistDescription)
	}
	if agency, ok := state.Agency(); ok {
		fmt.Fprintf(&sb, "\nThe protagonist's established agency: a %s named %q (%s). Honor it in every subsequent chapter; never contradict or re-offer it.\n", agency.Category, agency.Name, agency.VisualDetails)
	}
	return sb.String()
}

// BuildUserPrompt builds the chapter-specific user prompt. Returns
// *adventure.PromptContractViolation when a required placeholder (e.g. a
// LESSON chapter with no question) cannot be filled.
func (b *Builder) BuildUserPrompt(in Input) (string, error) {
	chapterType := in.ChapterType.Canonical()
	phase := PhaseFor(in.ChapterNumber, in.State.StoryLength)

	switch chapterType {
	case adventure.ChapterStory:
		return b.buildStoryPrompt(in, phase)
	case adventure.ChapterLesson:
		return b.buildLessonPrompt(in)
	case adventure.ChapterReflect:
		return b.buildReflectPrompt(in)
	case adventure.ChapterConclusion:
		return b.buildConclusionPrompt(in)
	default:
		return "", &adventure.PromptContractViolation{ChapterType: in.ChapterType, Reason: "unrecognized chapter type"}
	}
}

func (b *Builder) buildStoryPrompt(in Input, phase Phase) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write chapter %d of %d (STORY, narrative phase: %s).\n\n", in.ChapterNumber, in.State.StoryLength, phase)

	if phase == PhaseExposition {
		if in.AdventureTopic == "" {
			return "", &adventure.PromptContractViolation{ChapterType: in.ChapterType, Reason: "missing adventure_topic for exposition phase guidance"}
		}
		fmt.Fprintf(&sb, "Phase guidance: establish the world and stakes around the topic of %s.\n\n", in.AdventureTopic)
	}

	first := in.ChapterNumber == 1
	if first {
		if in.State.ProtagonistDescription == "" {
			return "", &adventure.PromptContractViolation{ChapterType: in.ChapterType, Reason: "missing protagonist_description for chapter 1"}
		}
		fmt.Fprintf(&sb, "This is the opening chapter. Embed this protagonist description verbatim at least once: %q\n\n", in.State.ProtagonistDescription)
		sb.WriteString("Offer the protagonist an agency choice across all four categories — companion, ability, artifact, profession — one per option, each with a short bracketed visual detail.\n\n")
	}

	sb.WriteString("End the chapter with exactly three choices labeled A, B, and C, wrapped as:\n<CHOICES>\nA) ...\nB) ...\nC) ...\n</CHOICES>\n")
	if emitsPlotTwistGuidance(phase) && len(in.State.SelectedNarrativeElements.PlotTwists) > 0 {
		sb.WriteString("\nIf it serves the moment, you may plant a seed of one of the available plot twists.\n")
	}

	if consequence := b.consequenceFragment(in); consequence != "" {
		sb.WriteString("\n")
		sb.WriteString(consequence)
	}

	return sb.String(), nil
}

func (b *Builder) buildLessonPrompt(in Input) (string, error) {
	if in.Question == nil {
		return "", &adventure.PromptContractViolation{ChapterType: in.ChapterType, Reason: "missing question for LESSON chapter"}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write chapter %d of %d (LESSON) using the Story Object Method: motivate the question through a concrete in-world object the protagonist encounters.\n\n", in.ChapterNumber, in.State.StoryLength)
	fmt.Fprintf(&sb, "The narrative MUST contain this exact question text, verbatim: %q\n", in.Question.QuestionText)
	sb.WriteString("Do NOT reveal the answer options in the prose; the player will be offered them separately.\n")
	return sb.String(), nil
}

func (b *Builder) buildReflectPrompt(in Input) (string, error) {
	if in.PriorQuestion == nil {
		return "", &adventure.PromptContractViolation{ChapterType: in.ChapterType, Reason: "missing prior question for REFLECT chapter"}
	}
	template := chooseChallengeTemplate(in.Seed, in.PriorCorrect)
	in.State.Metadata["reflect_challenge_history"] = appendHistory(in.State.Metadata["reflect_challenge_history"], template)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write chapter %d of %d (REFLECT), following up on the prior lesson.\n\n", in.ChapterNumber, in.State.StoryLength)
	fmt.Fprintf(&sb, "Prior question: %q\nPlayer was %s.\n", in.PriorQuestion.QuestionText, correctnessLabel(in.PriorCorrect))
	fmt.Fprintf(&sb, "Explanation guidance (weave understanding of this into the narrative, do not quote verbatim unless natural): %s\n\n", in.PriorQuestion.Explanation)
	fmt.Fprintf(&sb, "Use the %q challenge approach for this reflection.\n", template)
	return sb.String(), nil
}

func (b *Builder) buildConclusionPrompt(in Input) (string, error) {
	agency, hasAgency := in.State.Agency()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the final chapter %d of %d (CONCLUSION). No choices; bring the adventure to a satisfying close.\n\n", in.ChapterNumber, in.State.StoryLength)
	if hasAgency {
		fmt.Fprintf(&sb, "Resolve the protagonist's agency meaningfully: the %s %q must play a clear role in how the story concludes.\n", agency.Category, agency.Name)
	}
	return sb.String(), nil
}

// consequenceFragment injects the verbatim question and explanation for the
// chapter immediately following a LESSON, so the narrative can acknowledge
// the learning outcome accurately.
func (b *Builder) consequenceFragment(in Input) string {
	chapters := in.State.Chapters
	if len(chapters) == 0 {
		return ""
	}
	last := chapters[len(chapters)-1]
	if last.ChapterType.Canonical() != adventure.ChapterLesson || last.Question == nil {
		return ""
	}
	lr, ok := last.Response.(adventure.LessonResponse)
	if !ok {
		return ""
	}
	return fmt.Sprintf(
		"Acknowledge the prior lesson's outcome without re-asking it. The player was %s. Question: %q. Explanation: %s",
		correctnessLabel(lr.IsCorrect), last.Question.QuestionText, last.Question.Explanation,
	)
}

func correctnessLabel(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}

var correctChallengeTemplates = []string{"confidence_test", "application", "connection_making", "teaching_moment"}

const incorrectChallengeTemplate = "educational_recovery"

func chooseChallengeTemplate(seed int64, correct bool) string {
	if !correct {
		return incorrectChallengeTemplate
	}
	rng := rand.New(rand.NewSource(seed))
	return correctChallengeTemplates[rng.Intn(len(correctChallengeTemplates))]
}

func appendHistory(existing any, template string) []string {
	history, _ := existing.([]string)
	return append(history, template)
}
