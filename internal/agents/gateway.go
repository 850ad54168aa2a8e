package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"velvetrope/internal/game"
)

// Judgment is the judge's verdict on a single user message. The score is the
// raw judged value; the scoring engine clamps it before it touches a session.
type Judgment struct {
	Reasoning string `json:"reasoning"`
	Score     int    `json:"score"`
}

// GatewayConfig selects the model behind each role.
type GatewayConfig struct {
	DoormanModel   string
	JudgeModel     string
	CompactorModel string
	JSONRetries    int
}

// Gateway exposes the three agent capabilities the engine depends on. Each
// role is independently callable and independently failable; failures carry
// the matching sentinel so callers can branch without string matching.
type Gateway struct {
	client         ChatClient
	logger         *zap.Logger
	doormanModel   string
	judgeModel     string
	compactorModel string
	jsonRetries    int
}

// NewGateway wires the three roles over one chat client.
func NewGateway(client ChatClient, config GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	compactorModel := config.CompactorModel
	if compactorModel == "" {
		compactorModel = config.DoormanModel
	}
	return &Gateway{
		client:         client,
		logger:         logger,
		doormanModel:   config.DoormanModel,
		judgeModel:     config.JudgeModel,
		compactorModel: compactorModel,
		jsonRetries:    config.JSONRetries,
	}
}

const judgeRetryHint = "Return ONLY valid JSON matching this schema:\n" +
	`{"reasoning":"...","score":0}` + "\n" +
	"Rules: allowed scores are -20, -10, 0, 5, 10, 20. No extra text."

// Judge scores the candidate message against the recent transcript and the
// rolling session memory.
func (g *Gateway) Judge(ctx context.Context, memory string, history []ChatMessage, candidate string) (Judgment, error) {
	messages := []ChatMessage{
		{Role: "system", Content: buildJudgePrompt(memory)},
		{
			Role: "user",
			Content: "RECENT CONVERSATION TRANSCRIPT:\n" + formatTranscript(history) +
				"\n\nLATEST USER MESSAGE:\n" + candidate,
		},
	}

	var judgment Judgment
	err := chatJSON(ctx, g.client, ChatRequest{
		Model:       g.judgeModel,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   250,
	}, judgeRetryHint, g.jsonRetries, g.logger, &judgment)
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: %w", game.ErrJudgment, err)
	}

	if judgment.Score%5 != 0 {
		g.logger.Warn("judge score not a multiple of 5", zap.Int("score", judgment.Score))
	}
	return judgment, nil
}

// Reply produces the doorman's next in-character line. The directive carries
// the terminal-outcome instruction when the turn ended the game; the numeric
// score itself is never shown to the model as something to reveal.
func (g *Gateway) Reply(ctx context.Context, memory string, history []ChatMessage, candidate, directive string) (string, error) {
	messages := []ChatMessage{{Role: "system", Content: buildDoormanPrompt(directive)}}
	if memory != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: "SESSION MEMORY:\n" + memory})
	}
	messages = append(messages, history...)
	if candidate != "" {
		messages = append(messages, ChatMessage{Role: "user", Content: candidate})
	}

	reply, err := g.client.Chat(ctx, ChatRequest{
		Model:       g.doormanModel,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", game.ErrGeneration, err)
	}
	return reply, nil
}

// OpeningLine asks the persona for the first line of a fresh session.
func (g *Gateway) OpeningLine(ctx context.Context) (string, error) {
	return g.Reply(ctx, "", nil, "*A stranger walks up to the velvet rope.*", "")
}

// Summarize folds a batch of aged turns into the rolling session memory and
// returns the new memory as canonical JSON.
func (g *Gateway) Summarize(ctx context.Context, existingMemory, transcript string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: buildCompactorPrompt(existingMemory, transcript)},
		{Role: "user", Content: "Update session memory."},
	}

	var memory game.SessionMemory
	err := chatJSON(ctx, g.client, ChatRequest{
		Model:       g.compactorModel,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   1600,
	}, "Return ONLY valid JSON.", g.jsonRetries, g.logger, &memory)
	if err != nil {
		return "", fmt.Errorf("%w: %w", game.ErrSummarization, err)
	}

	encoded, err := json.Marshal(memory)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode memory: %w", game.ErrSummarization, err)
	}
	return string(encoded), nil
}

// formatTranscript renders chat history as speaker-labeled lines for the
// judge, which sees the conversation as untrusted content rather than turns.
func formatTranscript(history []ChatMessage) string {
	if len(history) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		speaker := "User"
		if msg.Role == "assistant" {
			speaker = "Viktor"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
