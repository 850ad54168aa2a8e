// Package engine coordinates the per-turn pipeline: validate, judge, score,
// reply, persist, compact. It owns all session mutation; everything else
// reads through it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"velvetrope/internal/agents"
	"velvetrope/internal/game"
	"velvetrope/internal/store"
)

// AgentGateway is the agent capability set the engine depends on. The
// concrete implementation lives in internal/agents; tests script it.
type AgentGateway interface {
	Judge(ctx context.Context, memory string, history []agents.ChatMessage, candidate string) (agents.Judgment, error)
	Reply(ctx context.Context, memory string, history []agents.ChatMessage, candidate, directive string) (string, error)
	OpeningLine(ctx context.Context) (string, error)
	Summarize(ctx context.Context, existingMemory, transcript string) (string, error)
}

// Config carries the engine's policy knobs. Window, threshold, and scoring
// zero values fall back to the process-wide defaults; StartingScore is taken
// as given (zero is a legitimate starting score), so build on DefaultConfig.
type Config struct {
	StartingScore       int
	RecentWindow        int // messages kept verbatim in prompts
	CompactionThreshold int // messages since last compaction that trigger one
	Scoring             game.Scoring
}

// DefaultConfig returns the stock pacing: start at 30, keep the last 10
// messages verbatim, compact once 12 uncompacted messages have aged past the
// window.
func DefaultConfig() Config {
	return Config{
		StartingScore:       game.StartingScore,
		RecentWindow:        10,
		CompactionThreshold: 12,
		Scoring:             game.DefaultScoring(),
	}
}

// Engine is the turn orchestrator plus session lifecycle manager.
type Engine struct {
	store   store.Store
	gateway AgentGateway
	config  Config
	locks   *lockTable
	logger  *zap.Logger
}

// New wires an engine over its collaborators.
func New(st store.Store, gateway AgentGateway, config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RecentWindow <= 0 {
		config.RecentWindow = DefaultConfig().RecentWindow
	}
	if config.CompactionThreshold <= 0 {
		config.CompactionThreshold = DefaultConfig().CompactionThreshold
	}
	if config.Scoring == (game.Scoring{}) {
		config.Scoring = game.DefaultScoring()
	}
	return &Engine{
		store:   st,
		gateway: gateway,
		config:  config,
		locks:   newLockTable(),
		logger:  logger,
	}
}

// StartResult is the response to starting or resuming a game.
type StartResult struct {
	SessionID      string         `json:"session_id"`
	DoormanMessage string         `json:"doorman_message"`
	Score          int            `json:"current_score"`
	State          game.State     `json:"game_state"`
	History        []game.Message `json:"-"`
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	SessionID      string     `json:"session_id"`
	DoormanMessage string     `json:"doorman_response"`
	ScoreDelta     int        `json:"score_delta"`
	Score          int        `json:"current_score"`
	State          game.State `json:"game_state"`
}

// Status is a read-only projection of a session.
type Status struct {
	SessionID    string     `json:"session_id"`
	Score        int        `json:"current_score"`
	State        game.State `json:"game_state"`
	MessageCount int        `json:"message_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

// History is the full ordered transcript of a session.
type History struct {
	SessionID string         `json:"session_id"`
	Score     int            `json:"current_score"`
	State     game.State     `json:"game_state"`
	Messages  []game.Message `json:"messages"`
}

// Start creates a fresh session and asks the persona for an opening line.
// The opening line is not a scored turn and is not persisted; a session's
// durable history begins with its first user message. If the persona is
// unreachable the canned line stands in, so starting a game never fails on
// model flakiness.
func (e *Engine) Start(ctx context.Context) (*StartResult, error) {
	session := &game.Session{
		ID:    uuid.NewString(),
		Score: e.config.StartingScore,
		State: game.StateActive,
	}
	if err := e.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	e.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.Int("score", session.Score))

	return &StartResult{
		SessionID:      session.ID,
		DoormanMessage: e.openingLine(ctx),
		Score:          session.Score,
		State:          session.State,
	}, nil
}

// Resume loads an existing session. A session with no messages yet gets a
// fresh opening line exactly as Start would produce; otherwise the caller
// gets the last doorman line plus the full transcript.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*StartResult, error) {
	session, err := e.loadSession(sessionID)
	if err != nil {
		return nil, err
	}

	messages, err := e.store.Messages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	doormanMessage := ""
	if len(messages) == 0 {
		doormanMessage = e.openingLine(ctx)
	} else if last, err := e.store.LastMessage(sessionID, game.RoleDoorman); err == nil && last != nil {
		doormanMessage = last.Content
	}

	return &StartResult{
		SessionID:      session.ID,
		DoormanMessage: doormanMessage,
		Score:          session.Score,
		State:          session.State,
		History:        messages,
	}, nil
}

// Submit runs one full turn for the candidate user message. Either the whole
// turn persists (both messages plus the score/state update) or nothing does.
func (e *Engine) Submit(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, game.NewValidationError("Message cannot be empty.", map[string]any{"field": "message"})
	}
	if words := game.CountWords(message); words > game.MaxMessageWords {
		return nil, game.NewValidationError(
			fmt.Sprintf("Message exceeds %d words.", game.MaxMessageWords),
			map[string]any{"field": "message", "words": words})
	}
	if utf8.RuneCountInString(message) > game.MaxMessageChars {
		return nil, game.NewValidationError(
			fmt.Sprintf("Message exceeds %d characters.", game.MaxMessageChars),
			map[string]any{"field": "message"})
	}

	release := e.locks.Acquire(sessionID)
	defer release()

	session, err := e.loadSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return nil, game.NewGameOverError(session.State)
	}

	recent, err := e.store.RecentMessages(sessionID, e.config.RecentWindow)
	if err != nil {
		return nil, game.NewTurnFailedError(err)
	}
	history := toChatHistory(recent)

	outcome, err := e.resolveTurn(ctx, session, history, message)
	if err != nil {
		return nil, err
	}

	delta := outcome.delta
	user := &game.Message{
		Role:           game.RoleUser,
		Content:        message,
		ScoreDelta:     &delta,
		JudgeReasoning: outcome.reasoning,
	}
	doorman := &game.Message{
		Role:    game.RoleDoorman,
		Content: outcome.reply,
	}

	if err := e.store.AppendTurn(sessionID, user, doorman, outcome.score, outcome.state); err != nil {
		return nil, game.NewTurnFailedError(err)
	}

	e.logger.Info("turn completed",
		zap.String("session_id", sessionID),
		zap.Int("delta", outcome.delta),
		zap.Int("score", outcome.score),
		zap.String("state", string(outcome.state)))

	e.maybeCompact(ctx, sessionID)

	return &TurnResult{
		SessionID:      sessionID,
		DoormanMessage: outcome.reply,
		ScoreDelta:     outcome.delta,
		Score:          outcome.score,
		State:          outcome.state,
	}, nil
}

// turnOutcome is the resolved result of judging and replying, before any of
// it is persisted.
type turnOutcome struct {
	delta     int
	score     int
	state     game.State
	reasoning string
	reply     string
}

// resolveTurn runs the safety screens, the judge, the scoring engine, and the
// persona, in that order. No writes happen here.
func (e *Engine) resolveTurn(ctx context.Context, session *game.Session, history []agents.ChatMessage, message string) (*turnOutcome, error) {
	verdict := game.Screen(message)

	// Threats and self-harm coercion end the game on the spot, with a canned
	// line and no model calls. The score drops to the lose threshold so the
	// score/state invariant holds on the persisted row.
	if verdict == game.ScreenSelfHarm || verdict == game.ScreenViolentThreat {
		reply := game.ViolentThreatResponse
		if verdict == game.ScreenSelfHarm {
			reply = game.SelfHarmResponse
		}
		e.logger.Warn("safety screen forced a loss",
			zap.String("session_id", session.ID),
			zap.String("reason", verdict.Reasoning()))
		return &turnOutcome{
			delta:     e.config.Scoring.Lose - session.Score,
			score:     e.config.Scoring.Lose,
			state:     game.StateLost,
			reasoning: verdict.Reasoning(),
			reply:     reply,
		}, nil
	}

	var delta int
	var reasoning string
	if verdict == game.ScreenPromptInjection {
		delta = game.InjectionDelta
		reasoning = verdict.Reasoning()
	} else {
		judgment, err := e.gateway.Judge(ctx, session.MemorySummary, history, message)
		if err != nil {
			e.logger.Warn("judge failed",
				zap.String("session_id", session.ID),
				zap.Error(err))
			return nil, game.NewTurnFailedError(err)
		}
		delta = judgment.Score
		reasoning = judgment.Reasoning
	}

	clamped := e.config.Scoring.ClampDelta(delta)
	if clamped != delta {
		e.logger.Warn("judged delta clamped",
			zap.String("session_id", session.ID),
			zap.Int("raw", delta),
			zap.Int("clamped", clamped))
	}
	score, state := e.config.Scoring.Apply(session.Score, delta)

	reply, err := e.gateway.Reply(ctx, session.MemorySummary, history, message, agents.StateDirective(state))
	if err != nil {
		e.logger.Warn("reply failed",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return nil, game.NewTurnFailedError(err)
	}
	if gated, rewrote := game.EnforceEntryGate(state, reply); rewrote {
		e.logger.Warn("doorman tried to grant entry out of turn",
			zap.String("session_id", session.ID),
			zap.String("state", string(state)))
		reply = gated
	}

	return &turnOutcome{
		delta:     clamped,
		score:     score,
		state:     state,
		reasoning: reasoning,
		reply:     reply,
	}, nil
}

// Status returns the authoritative score/state projection for a session.
// The message count is the number of scored user messages (turns played).
func (e *Engine) Status(sessionID string) (*Status, error) {
	session, err := e.loadSession(sessionID)
	if err != nil {
		return nil, err
	}
	count, err := e.store.CountMessages(sessionID, game.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	return &Status{
		SessionID:    session.ID,
		Score:        session.Score,
		State:        session.State,
		MessageCount: count,
		CreatedAt:    session.CreatedAt,
	}, nil
}

// GetHistory returns the full transcript for display or audit.
func (e *Engine) GetHistory(sessionID string) (*History, error) {
	session, err := e.loadSession(sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := e.store.Messages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &History{
		SessionID: session.ID,
		Score:     session.Score,
		State:     session.State,
		Messages:  messages,
	}, nil
}

// ListSessions returns status projections for every session, most recently
// touched first.
func (e *Engine) ListSessions() ([]Status, error) {
	sessions, err := e.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	statuses := make([]Status, 0, len(sessions))
	for _, session := range sessions {
		count, err := e.store.CountMessages(session.ID, game.RoleUser)
		if err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}
		statuses = append(statuses, Status{
			SessionID:    session.ID,
			Score:        session.Score,
			State:        session.State,
			MessageCount: count,
			CreatedAt:    session.CreatedAt,
		})
	}
	return statuses, nil
}

func (e *Engine) loadSession(sessionID string) (*game.Session, error) {
	session, err := e.store.GetSession(sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, game.NewNotFoundError(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func (e *Engine) openingLine(ctx context.Context) string {
	line, err := e.gateway.OpeningLine(ctx)
	if err != nil || strings.TrimSpace(line) == "" {
		if err != nil {
			e.logger.Warn("opening line generation failed, using canned line", zap.Error(err))
		}
		return agents.OpeningLine
	}
	return line
}

// toChatHistory converts stored messages into chat-completion form.
func toChatHistory(messages []game.Message) []agents.ChatMessage {
	history := make([]agents.ChatMessage, 0, len(messages))
	for _, message := range messages {
		role := "user"
		if message.Role == game.RoleDoorman {
			role = "assistant"
		}
		history = append(history, agents.ChatMessage{Role: role, Content: message.Content})
	}
	return history
}
