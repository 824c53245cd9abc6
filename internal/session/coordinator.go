// Package session implements the Session Coordinator (C9): it owns one
// client's bidirectional connection, starts or resumes an adventure,
// decodes inbound messages, drives the Stream Handler and Choice Processor
// in lockstep, and relays their outbound events back to the client under
// the ordering guarantees the rest of the engine depends on.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/choice"
	"learningodyssey/internal/content"
	"learningodyssey/internal/planner"
	"learningodyssey/internal/store"
	"learningodyssey/internal/streamhandler"
)

const (
	defaultStoryLength    = 10
	loadingPhraseInterval = 5 * time.Second
)

// Stream is the narrow slice of streamhandler.Handler the coordinator
// drives.
type Stream interface {
	RunChapter(ctx context.Context, state *adventure.AdventureState, session streamhandler.Session, req streamhandler.ChapterRequest) error
	DrainSummaries(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string) (string, error)
}

// Choice is the narrow slice of choice.Processor the coordinator drives.
type Choice interface {
	ApplyStoryChoice(state *adventure.AdventureState, category, chosenPath, choiceText string) error
	ApplyLessonAnswer(state *adventure.AdventureState, answerIndex int) error
	ApplyRevealSummary(state *adventure.AdventureState) error
}

// Store is the narrow slice of the State Store Adapter (C8) the coordinator
// needs for resumption lookup; the Stream Handler calls the rest of the
// contract itself.
type Store interface {
	Load(ctx context.Context, stateID string) (store.Record, error)
	ActiveForClient(ctx context.Context, clientUUID string) (stateID string, ok bool, err error)
}

// Coordinator owns exactly one *websocket.Conn for the lifetime of one
// adventure. Unlike a shared hub broadcasting to many clients, Learning
// Odyssey's Non-goals rule out multi-user collaboration, so there is
// nothing to fan out to: one connection, one inbound read loop (this
// goroutine), one outbound writer goroutine. gorilla/websocket connections
// are not safe for concurrent writes, so every outbound message — chapter
// text, images, loading phrases — funnels through the single writer,
// which is what lets the ordering guarantees hold in practice.
type Coordinator struct {
	conn   *websocket.Conn
	logger *slog.Logger

	stream  Stream
	choice  Choice
	store   Store
	catalog content.StoryCatalog
	lessons content.LessonBank

	environment string

	outbound  chan outboundEnvelope
	writeDone chan struct{}

	mu            sync.Mutex
	loadingCancel context.CancelFunc
}

func New(conn *websocket.Conn, stream Stream, choiceProc Choice, st Store, catalog content.StoryCatalog, lessons content.LessonBank, environment string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		conn:        conn,
		stream:      stream,
		choice:      choiceProc,
		store:       st,
		catalog:     catalog,
		lessons:     lessons,
		environment: environment,
		logger:      logger,
		outbound:    make(chan outboundEnvelope, 64),
		writeDone:   make(chan struct{}),
	}
}

// Run owns the connection until the adventure completes, the client
// disconnects, or ctx is cancelled. It always closes the connection before
// returning.
func (c *Coordinator) Run(ctx context.Context) error {
	go c.runWriter()
	defer func() {
		close(c.outbound)
		<-c.writeDone
		_ = c.conn.Close()
	}()

	env, err := c.readInbound()
	if err != nil {
		return fmt.Errorf("session: read start message: %w", err)
	}
	if env.Type != inboundStart {
		violation := &adventure.ProtocolViolation{Reason: fmt.Sprintf("first message must be %q, got %q", inboundStart, env.Type)}
		c.sendError(ctx, "protocol", violation.Error())
		return violation
	}
	if env.ClientUUID == "" {
		violation := &adventure.ProtocolViolation{Reason: "start requires client_uuid"}
		c.sendError(ctx, "protocol", violation.Error())
		return violation
	}

	state, category, adventureTopic, seed, err := c.beginOrResume(ctx, env)
	if err != nil {
		c.sendError(ctx, "store", err.Error())
		return err
	}

	return c.driveChapters(ctx, state, category, adventureTopic, seed, env.ClientUUID)
}

// runWriter is the single goroutine permitted to call conn.WriteMessage.
// Once a write fails it keeps draining (without writing) so senders on
// c.outbound never block waiting for a connection that is already gone;
// Run's own read loop will observe the same failure and unwind.
func (c *Coordinator) runWriter() {
	defer close(c.writeDone)
	failed := false
	for env := range c.outbound {
		if failed {
			continue
		}
		data, err := env.marshal()
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			if c.logger != nil {
				c.logger.Warn("session: write failed, discarding further outbound messages", slog.String("error", err.Error()))
			}
			failed = true
		}
	}
}

func (c *Coordinator) send(ctx context.Context, env outboundEnvelope) error {
	select {
	case c.outbound <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) sendError(ctx context.Context, kind, message string) {
	_ = c.send(ctx, outboundEnvelope{Type: outboundError, Kind: kind, Message: message})
}

func (c *Coordinator) readInbound() (inboundEnvelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return inboundEnvelope{}, err
	}
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return inboundEnvelope{}, fmt.Errorf("session: malformed message: %w", err)
	}
	return env, nil
}

// --- streamhandler.Session implementation ---

func (c *Coordinator) SendChapterUpdate(ctx context.Context, currentChapter, totalChapters int, chapterType adventure.ChapterType) error {
	c.beginLoadingPhrases(ctx)
	return c.send(ctx, outboundEnvelope{
		Type:           outboundChapterUpdate,
		CurrentChapter: currentChapter,
		TotalChapters:  totalChapters,
		ChapterType:    string(chapterType),
	})
}

func (c *Coordinator) SendTextFragment(ctx context.Context, fragment string) error {
	c.stopLoadingPhrases()
	return c.send(ctx, outboundEnvelope{Type: outboundTextFragment, Text: fragment})
}

func (c *Coordinator) SendChapterComplete(ctx context.Context, chapterNumber int) error {
	c.stopLoadingPhrases()
	return c.send(ctx, outboundEnvelope{Type: outboundChapterComplete, ChapterNumber: chapterNumber})
}

func (c *Coordinator) SendImageUpdate(ctx context.Context, chapterNumber int, imagePayload string) error {
	return c.send(ctx, outboundEnvelope{Type: outboundImageUpdate, ChapterNumber: chapterNumber, ImagePayload: imagePayload})
}

func (c *Coordinator) SendAgencyImageUpdate(ctx context.Context, optionIndex int, imagePayload string) error {
	return c.send(ctx, outboundEnvelope{Type: outboundAgencyImageUpdate, OptionIndex: optionIndex, ImagePayload: imagePayload})
}

func (c *Coordinator) SendStoryComplete(ctx context.Context) error {
	return c.send(ctx, outboundEnvelope{Type: outboundStoryComplete})
}

func (c *Coordinator) SendSummaryReady(ctx context.Context, stateID string) error {
	return c.send(ctx, outboundEnvelope{Type: outboundSummaryReady, StateID: stateID})
}

// beginLoadingPhrases starts (or restarts) the loading_phrase rotation for
// the loader window before a chapter's first token arrives. stopLoadingPhrases,
// called on the first SendTextFragment, ends the window — mirroring the
// teacher's ticker-driven "thinking" animation, just rotating a curated
// phrase list instead of dots.
func (c *Coordinator) beginLoadingPhrases(ctx context.Context) {
	c.mu.Lock()
	if c.loadingCancel != nil {
		c.loadingCancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	c.loadingCancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(loadingPhraseInterval)
		defer ticker.Stop()
		idx := 0
		for {
			select {
			case <-loadCtx.Done():
				return
			case <-ticker.C:
				idx = (idx + 1) % len(loadingPhrases)
				_ = c.send(loadCtx, outboundEnvelope{Type: outboundLoadingPhrase, Text: loadingPhrases[idx]})
			}
		}
	}()
}

func (c *Coordinator) stopLoadingPhrases() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadingCancel != nil {
		c.loadingCancel()
		c.loadingCancel = nil
	}
}

// beginOrResume either reconstructs an active adventure reported by C8 or
// starts a fresh one from the catalog/lesson-bank inputs named in `start`.
func (c *Coordinator) beginOrResume(ctx context.Context, env inboundEnvelope) (*adventure.AdventureState, content.StoryCategory, string, int64, error) {
	seed := planner.Seed(env.ClientUUID)

	if env.Resume {
		stateID, ok, err := c.store.ActiveForClient(ctx, env.ClientUUID)
		if err != nil {
			return nil, content.StoryCategory{}, "", 0, fmt.Errorf("session: check active adventure: %w", err)
		}
		if ok {
			rec, err := c.store.Load(ctx, stateID)
			if err != nil {
				return nil, content.StoryCategory{}, "", 0, fmt.Errorf("session: load active adventure: %w", err)
			}
			state, warnings := adventure.Reconstruct(rec.Snapshot)
			for _, w := range warnings {
				if c.logger != nil {
					c.logger.Warn("session: state reconstruction warning", slog.String("error", w.Error()))
				}
			}
			categoryName, _ := state.Metadata["story_category"].(string)
			category, err := c.catalog.Get(categoryName)
			if err != nil {
				return nil, content.StoryCategory{}, "", 0, fmt.Errorf("session: resolve story category on resume: %w", err)
			}
			adventureTopic, _ := state.Metadata["adventure_topic"].(string)
			return state, category, adventureTopic, seed, nil
		}
	}

	category, err := c.catalog.Get(env.StoryCategory)
	if err != nil {
		return nil, content.StoryCategory{}, "", 0, fmt.Errorf("session: resolve story category: %w", err)
	}
	questions, err := c.lessons.Questions(env.LessonTopic)
	if err != nil {
		return nil, content.StoryCategory{}, "", 0, fmt.Errorf("session: resolve lesson topic: %w", err)
	}

	plan := planner.Plan(defaultStoryLength, len(questions), seed)
	for _, r := range plan.Relaxed {
		if c.logger != nil {
			c.logger.Warn("session: planner relaxed a constraint", slog.String("detail", r))
		}
	}

	state := adventure.New(defaultStoryLength, plan.Types, pickProtagonist(category, seed))
	state.SelectedNarrativeElements = category.NarrativeElements()
	state.SelectedSensoryDetails = category.SensoryDetails()
	state.Metadata["story_category"] = env.StoryCategory
	state.Metadata["lesson_topic"] = env.LessonTopic
	state.Metadata["adventure_topic"] = env.LessonTopic
	state.Metadata["client_uuid"] = env.ClientUUID

	return state, category, env.LessonTopic, seed, nil
}

func pickProtagonist(category content.StoryCategory, seed int64) string {
	if len(category.ProtagonistDescriptionChoices) == 0 {
		return ""
	}
	idx := int(uint64(seed) % uint64(len(category.ProtagonistDescriptionChoices)))
	return category.ProtagonistDescriptionChoices[idx]
}

// driveChapters is the per-session chapter loop: generate, await a choice
// if the chapter type demands one, repeat, then drain at CONCLUSION. It
// never tracks a separate chapter counter — nextNumber is always derived
// fresh from len(state.Chapters).
func (c *Coordinator) driveChapters(ctx context.Context, state *adventure.AdventureState, category content.StoryCategory, adventureTopic string, seed int64, clientUUID string) error {
	for {
		state.Lock()
		nextNumber := len(state.Chapters) + 1
		var lastType adventure.ChapterType
		lastAnswered := true
		if nextNumber > 1 {
			last := state.Chapters[nextNumber-2]
			lastType = last.ChapterType
			lastAnswered = last.Response != nil
		}
		storyLength := state.StoryLength
		state.Unlock()

		if nextNumber > storyLength {
			return c.finishAdventure(ctx, state, clientUUID)
		}

		if nextNumber > 1 && requiresChoice(lastType) && !lastAnswered {
			if err := c.awaitAndApplyChoice(ctx, state, category, lastType); err != nil {
				return err
			}
			continue
		}

		chapterType := state.PlannedChapterTypes[nextNumber-1].Canonical()
		req := streamhandler.ChapterRequest{
			Category:       category,
			ChapterNumber:  nextNumber,
			ChapterType:    chapterType,
			StoryLength:    storyLength,
			AdventureTopic: adventureTopic,
			Seed:           seed,
			Environment:    c.environment,
			ClientUUID:     clientUUID,
		}

		switch chapterType {
		case adventure.ChapterLesson:
			topic, _ := state.Metadata["lesson_topic"].(string)
			q, err := c.pickQuestion(state, topic)
			if err != nil {
				c.sendError(ctx, "lesson", err.Error())
				return err
			}
			req.Question = q
		case adventure.ChapterReflect:
			priorQuestion, priorCorrect := lastLessonOutcome(state)
			req.PriorQuestion = priorQuestion
			req.PriorCorrect = priorCorrect
		}

		if err := c.stream.RunChapter(ctx, state, c, req); err != nil {
			c.sendError(ctx, "llm", err.Error())
			return err
		}
	}
}

// requiresChoice reports whether advancing past a chapter of this type
// needs player input. REFLECT and CONCLUSION never gather a story_choice/
// lesson_answer — REFLECT continues the narrative automatically after a
// LESSON, and CONCLUSION is followed by reveal_summary instead.
func requiresChoice(t adventure.ChapterType) bool {
	switch t.Canonical() {
	case adventure.ChapterStory, adventure.ChapterLesson:
		return true
	default:
		return false
	}
}

func (c *Coordinator) pickQuestion(state *adventure.AdventureState, topic string) (*adventure.LessonQuestion, error) {
	all, err := c.lessons.Questions(topic)
	if err != nil {
		return nil, fmt.Errorf("session: load lesson questions for topic %q: %w", topic, err)
	}
	state.Lock()
	used := state.UsedQuestions()
	state.Unlock()
	for i := range all {
		if !used[all[i].QuestionText] {
			q := all[i]
			return &q, nil
		}
	}
	return nil, fmt.Errorf("session: no unused lesson question available for topic %q", topic)
}

// lastLessonOutcome finds the most recently answered LESSON chapter, for
// the REFLECT chapter that must immediately follow it.
func lastLessonOutcome(state *adventure.AdventureState) (*adventure.LessonQuestion, bool) {
	state.Lock()
	defer state.Unlock()
	for i := len(state.Chapters) - 1; i >= 0; i-- {
		ch := state.Chapters[i]
		if ch.ChapterType.Canonical() != adventure.ChapterLesson {
			continue
		}
		if lr, ok := ch.Response.(adventure.LessonResponse); ok {
			return ch.Question, lr.IsCorrect
		}
		return ch.Question, false
	}
	return nil, false
}

// awaitAndApplyChoice blocks for the next inbound message, tolerating
// client_ping, and applies a story_choice or lesson_answer depending on the
// chapter type that is awaiting a response. Malformed or out-of-turn
// messages are reported as `error` and do not advance the loop.
func (c *Coordinator) awaitAndApplyChoice(ctx context.Context, state *adventure.AdventureState, category content.StoryCategory, lastType adventure.ChapterType) error {
	for {
		env, err := c.readInbound()
		if err != nil {
			return fmt.Errorf("session: read choice: %w", err)
		}

		switch env.Type {
		case inboundPing:
			continue
		case inboundChoice:
			if err := c.applyChoice(state, category, lastType, env); err != nil {
				c.sendError(ctx, "protocol", err.Error())
				continue
			}
			return nil
		default:
			violation := &adventure.ProtocolViolation{Reason: fmt.Sprintf("unexpected message type %q while awaiting a choice", env.Type)}
			c.sendError(ctx, "protocol", violation.Error())
		}
	}
}

func (c *Coordinator) applyChoice(state *adventure.AdventureState, category content.StoryCategory, lastType adventure.ChapterType, env inboundEnvelope) error {
	switch lastType.Canonical() {
	case adventure.ChapterStory:
		chosenPath, err := choice.ParseStoryChosenPath(env.ChosenPath)
		if err != nil {
			return err
		}
		return c.choice.ApplyStoryChoice(state, category.Name, chosenPath, env.ChoiceText)
	case adventure.ChapterLesson:
		idx, err := choice.ParseLessonAnswerIndex(env.ChosenPath)
		if err != nil {
			return err
		}
		return c.choice.ApplyLessonAnswer(state, idx)
	default:
		return fmt.Errorf("session: chapter type %q does not accept a choice", lastType)
	}
}

// finishAdventure waits for reveal_summary, applies it, drains every
// background task, and sends summary_ready — the terminal sequence
// guaranteed by ordering rule 5.
func (c *Coordinator) finishAdventure(ctx context.Context, state *adventure.AdventureState, clientUUID string) error {
	for {
		env, err := c.readInbound()
		if err != nil {
			return fmt.Errorf("session: read reveal_summary: %w", err)
		}
		if env.Type == inboundPing {
			continue
		}
		if env.Type != inboundChoice || env.ChosenPath != revealSummaryChosenPath {
			violation := &adventure.ProtocolViolation{Reason: fmt.Sprintf("expected chosen_path=%q", revealSummaryChosenPath)}
			c.sendError(ctx, "protocol", violation.Error())
			continue
		}
		break
	}

	if err := c.choice.ApplyRevealSummary(state); err != nil {
		c.sendError(ctx, "protocol", err.Error())
		return err
	}

	stateID, err := c.stream.DrainSummaries(ctx, state, c.environment, clientUUID)
	if err != nil {
		c.sendError(ctx, "store", err.Error())
		return err
	}

	return c.SendSummaryReady(ctx, stateID)
}
