// Package streamhandler implements the Stream Handler (C7): the per-chapter
// drive loop that builds prompts, streams narrative text to the client with
// a pacing floor, appends the finished chapter to state, launches the
// deferred summary/visual tasks, and starts the image pipeline — all under
// the ordering guarantees the Session Coordinator depends on.
package streamhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/content"
	"learningodyssey/internal/imageprompt"
	"learningodyssey/internal/llmgateway"
	"learningodyssey/internal/promptbuilder"
)

// Session is the narrow outbound slice of the Session Coordinator the
// handler drives. Implementations must serialize writes themselves; this
// handler may call these methods from multiple goroutines (the main chapter
// loop and the image/agency-image pipelines).
type Session interface {
	SendChapterUpdate(ctx context.Context, currentChapter, totalChapters int, chapterType adventure.ChapterType) error
	SendTextFragment(ctx context.Context, fragment string) error
	SendChapterComplete(ctx context.Context, chapterNumber int) error
	SendImageUpdate(ctx context.Context, chapterNumber int, imagePayload string) error
	SendAgencyImageUpdate(ctx context.Context, optionIndex int, imagePayload string) error
	SendStoryComplete(ctx context.Context) error
	SendSummaryReady(ctx context.Context, stateID string) error
}

// Gateway is the narrow slice of llmgateway.Gateway the handler needs.
type Gateway interface {
	Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error)
	Stream(ctx context.Context, req llmgateway.CompletionRequest, onDelta func(string)) error
}

// ImageSynth is the narrow slice of imageprompt.Synthesizer the handler
// needs for the per-chapter and agency image pipelines.
type ImageSynth interface {
	GenerateAndSubmit(ctx context.Context, chapterContent string, in imageprompt.SceneInputs) (string, error)
}

// Store is the narrow slice of the State Store Adapter (C8) the handler
// needs to persist after every chapter append and at reveal-summary time.
type Store interface {
	Store(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string, isComplete bool) (string, error)
}

const (
	defaultWordPaceFloor        = 20 * time.Millisecond
	defaultStandardTimeout      = 30 * time.Second
	defaultConclusionTimeout    = 60 * time.Second
	defaultSummaryDrainDeadline = 60 * time.Second
)

// Handler drives chapter generation for a single adventure session.
type Handler struct {
	gateway Gateway
	builder *promptbuilder.Builder
	images  ImageSynth
	store   Store
	logger  *slog.Logger

	wordPaceFloor        time.Duration
	standardTimeout      time.Duration
	conclusionTimeout    time.Duration
	summaryDrainDeadline time.Duration
}

func New(gateway Gateway, builder *promptbuilder.Builder, images ImageSynth, store Store, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:              gateway,
		builder:              builder,
		images:               images,
		store:                store,
		logger:               logger,
		wordPaceFloor:        defaultWordPaceFloor,
		standardTimeout:      defaultStandardTimeout,
		conclusionTimeout:    defaultConclusionTimeout,
		summaryDrainDeadline: defaultSummaryDrainDeadline,
	}
}

// ChapterRequest bundles the inputs RunChapter needs beyond state itself.
type ChapterRequest struct {
	Category       content.StoryCategory
	ChapterNumber  int
	ChapterType    adventure.ChapterType
	StoryLength    int
	AdventureTopic string
	Question       *adventure.LessonQuestion
	PriorQuestion  *adventure.LessonQuestion
	PriorCorrect   bool
	Seed           int64
	Environment    string
	ClientUUID     string
}

// RunChapter implements spec step 1-7 for one chapter: announce, stream,
// append, persist, and fan out deferred work. It returns once the chapter's
// own text has fully streamed and been persisted; the image/agency-image
// pipelines and deferred summary/visual tasks continue in the background.
func (h *Handler) RunChapter(ctx context.Context, state *adventure.AdventureState, session Session, req ChapterRequest) error {
	if err := session.SendChapterUpdate(ctx, req.ChapterNumber, req.StoryLength, req.ChapterType); err != nil {
		return fmt.Errorf("stream handler: send chapter_update: %w", err)
	}

	systemPrompt := h.builder.BuildSystemPrompt(state, req.Category)
	userPrompt, err := h.builder.BuildUserPrompt(promptbuilder.Input{
		State:          state,
		Category:       req.Category,
		ChapterNumber:  req.ChapterNumber,
		ChapterType:    req.ChapterType,
		AdventureTopic: req.AdventureTopic,
		Question:       req.Question,
		PriorQuestion:  req.PriorQuestion,
		PriorCorrect:   req.PriorCorrect,
		Seed:           req.Seed,
	})
	if err != nil {
		return fmt.Errorf("stream handler: build user prompt: %w", err)
	}

	timeout := h.standardTimeout
	if req.ChapterType == adventure.ChapterConclusion {
		timeout = h.conclusionTimeout
	}
	streamCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pacer := newWordPacer(h.wordPaceFloor)
	var full []byte
	var sendErr error
	streamErr := h.gateway.Stream(streamCtx, llmgateway.CompletionRequest{
		System:  systemPrompt,
		Prompt:  userPrompt,
		UseCase: llmgateway.UseCaseStoryGeneration,
	}, func(delta string) {
		full = append(full, delta...)
		if sendErr != nil {
			return
		}
		if err := pacer.feed(streamCtx, delta, func(chunk string) error {
			return session.SendTextFragment(ctx, chunk)
		}); err != nil {
			sendErr = err
			cancel()
		}
	})
	if sendErr != nil {
		return fmt.Errorf("stream handler: send text_fragment for chapter %d: %w", req.ChapterNumber, sendErr)
	}
	if streamErr != nil {
		return fmt.Errorf("stream handler: stream chapter %d: %w", req.ChapterNumber, streamErr)
	}
	if err := pacer.flush(streamCtx, func(chunk string) error {
		return session.SendTextFragment(ctx, chunk)
	}); err != nil {
		return fmt.Errorf("stream handler: flush chapter %d: %w", req.ChapterNumber, err)
	}

	chapterContent := string(full)
	state.Lock()
	state.AppendChapter(adventure.Chapter{
		ChapterNumber: req.ChapterNumber,
		ChapterType:   req.ChapterType,
		Content:       chapterContent,
		Question:      req.Question,
	})
	state.Unlock()

	if err := session.SendChapterComplete(ctx, req.ChapterNumber); err != nil {
		return fmt.Errorf("stream handler: send chapter_complete: %w", err)
	}

	if req.ChapterType == adventure.ChapterConclusion {
		if err := session.SendStoryComplete(ctx); err != nil {
			return fmt.Errorf("stream handler: send story_complete: %w", err)
		}
	}

	// Deferred summary/visual tasks for the chapter the reader just answered
	// were enqueued by the Choice Processor before this call; only launch
	// them now that this chapter's own streaming has finished, so they never
	// contend with word-paced delivery.
	h.LaunchDeferredTasks(ctx, state, req.ChapterNumber-1)

	if req.ChapterNumber == 1 {
		h.launchAgencyImages(ctx, state, session, chapterContent, req.Category)
	} else {
		h.launchChapterImage(ctx, state, session, chapterContent, req.ChapterNumber, req.Category)
	}

	if _, err := h.store.Store(ctx, state, req.Environment, req.ClientUUID, false); err != nil {
		return fmt.Errorf("stream handler: persist chapter %d: %w", req.ChapterNumber, err)
	}

	return nil
}

// LaunchDeferredTasks drains state.DeferredSummaryTasks (enqueued by the
// Choice Processor) and runs each as a tracked, panic-recovered background
// goroutine. Callers must invoke this only after a chapter's streaming has
// fully completed — deferred tasks must never contend with the word-paced
// stream loop.
func (h *Handler) LaunchDeferredTasks(ctx context.Context, state *adventure.AdventureState, chapterNumber int) {
	state.Lock()
	tasks := state.DeferredSummaryTasks
	state.DeferredSummaryTasks = nil
	pending := make([]*adventure.PendingTask, 0, len(tasks))
	for range tasks {
		pt := &adventure.PendingTask{ChapterNumber: chapterNumber, Label: "summary_and_visuals", Done: make(chan struct{})}
		state.PendingSummaryTasks = append(state.PendingSummaryTasks, pt)
		pending = append(pending, pt)
	}
	state.Unlock()

	for i, task := range tasks {
		go h.runDeferredTask(ctx, pending[i], task)
	}
}

func (h *Handler) runDeferredTask(ctx context.Context, pt *adventure.PendingTask, task adventure.DeferredTask) {
	defer close(pt.Done)
	defer func() {
		if r := recover(); r != nil {
			pt.Err = fmt.Errorf("stream handler: deferred task panicked: %v", r)
			if h.logger != nil {
				h.logger.Error("deferred task panic", slog.Int("chapter", pt.ChapterNumber), slog.Any("recovered", r))
			}
		}
	}()
	pt.Err = task(ctx)
}

// DrainSummaries implements the reveal-summary drain: it launches the
// CONCLUSION chapter's own deferred tasks (enqueued by ApplyRevealSummary,
// which has no chapter after it to trigger RunChapter's usual
// LaunchDeferredTasks call), awaits every pending_summary_tasks entry under
// a deadline, then persists the final, complete snapshot and returns the
// state_id for summary_ready.
func (h *Handler) DrainSummaries(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string) (string, error) {
	state.Lock()
	conclusionChapter := state.StoryLength
	state.Unlock()
	h.LaunchDeferredTasks(ctx, state, conclusionChapter)

	drainCtx, cancel := context.WithTimeout(ctx, h.summaryDrainDeadline)
	defer cancel()

	state.Lock()
	pending := append([]*adventure.PendingTask(nil), state.PendingSummaryTasks...)
	state.Unlock()

	for _, pt := range pending {
		if err := pt.Wait(drainCtx); err != nil && h.logger != nil {
			h.logger.Warn("background task did not drain before deadline", slog.Int("chapter", pt.ChapterNumber), slog.String("error", err.Error()))
		}
	}

	stateID, err := h.store.Store(ctx, state, environment, clientUUID, true)
	if err != nil {
		return "", fmt.Errorf("stream handler: persist final state: %w", err)
	}
	return stateID, nil
}

func (h *Handler) launchChapterImage(ctx context.Context, state *adventure.AdventureState, session Session, chapterContent string, chapterNumber int, category content.StoryCategory) {
	go func() {
		defer func() {
			if r := recover(); r != nil && h.logger != nil {
				h.logger.Error("image pipeline panic", slog.Int("chapter", chapterNumber), slog.Any("recovered", r))
			}
		}()
		sensory := category.SensoryDetails()
		state.Lock()
		agency, _ := state.Agency()
		protagonist := state.ProtagonistDescription
		charactersInScene := make(map[string]string, len(state.CharacterVisuals))
		for k, v := range state.CharacterVisuals {
			charactersInScene[k] = v
		}
		state.Unlock()
		url, err := h.images.GenerateAndSubmit(ctx, chapterContent, imageprompt.SceneInputs{
			ProtagonistDescription: protagonist,
			Agency:                 agency,
			SensoryVisuals:         sensory.Visuals,
			CharactersInScene:      charactersInScene,
		})
		if err != nil {
			failure := &adventure.ImageGenerationFailure{ChapterNumber: chapterNumber, Cause: err}
			if h.logger != nil {
				h.logger.Warn("image generation failed", slog.Int("chapter", chapterNumber), slog.String("error", failure.Error()))
			}
			return
		}
		if err := session.SendImageUpdate(ctx, chapterNumber, url); err != nil && h.logger != nil {
			h.logger.Warn("image_update delivery failed", slog.Int("chapter", chapterNumber), slog.String("error", err.Error()))
		}
	}()
}

func (h *Handler) launchAgencyImages(ctx context.Context, state *adventure.AdventureState, session Session, chapterContent string, category content.StoryCategory) {
	categories := []string{
		adventure.AgencyCompanion,
		adventure.AgencyAbility,
		adventure.AgencyArtifact,
		adventure.AgencyProfession,
	}
	sensory := category.SensoryDetails()
	for i, cat := range categories {
		i, cat := i, cat
		go func() {
			defer func() {
				if r := recover(); r != nil && h.logger != nil {
					h.logger.Error("agency image pipeline panic", slog.Int("option", i), slog.Any("recovered", r))
				}
			}()
			state.Lock()
			protagonist := state.ProtagonistDescription
			state.Unlock()
			url, err := h.images.GenerateAndSubmit(ctx, chapterContent, imageprompt.SceneInputs{
				ProtagonistDescription: protagonist,
				Agency:                 adventure.Agency{Category: cat},
				SensoryVisuals:         sensory.Visuals,
			})
			if err != nil {
				failure := &adventure.ImageGenerationFailure{ChapterNumber: 1, Cause: err}
				if h.logger != nil {
					h.logger.Warn("agency image generation failed", slog.Int("option", i), slog.String("error", failure.Error()))
				}
				return
			}
			if err := session.SendAgencyImageUpdate(ctx, i, url); err != nil && h.logger != nil {
				h.logger.Warn("agency_image_update delivery failed", slog.Int("option", i), slog.String("error", err.Error()))
			}
		}()
	}
}
