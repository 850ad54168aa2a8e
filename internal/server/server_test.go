package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"velvetrope/internal/agents"
	"velvetrope/internal/engine"
	"velvetrope/internal/store"
)

// stubGateway is a minimal scripted agent layer for handler tests.
type stubGateway struct {
	score    int
	reply    string
	judgeErr error
}

func (g *stubGateway) Judge(context.Context, string, []agents.ChatMessage, string) (agents.Judgment, error) {
	if g.judgeErr != nil {
		return agents.Judgment{}, g.judgeErr
	}
	return agents.Judgment{Reasoning: "stub", Score: g.score}, nil
}

func (g *stubGateway) Reply(context.Context, string, []agents.ChatMessage, string, string) (string, error) {
	return g.reply, nil
}

func (g *stubGateway) OpeningLine(context.Context) (string, error) {
	return "*Viktor glances at you.* Not on the list.", nil
}

func (g *stubGateway) Summarize(context.Context, string, string) (string, error) {
	return "{}", nil
}

func newTestServer(t *testing.T, gateway *stubGateway) *Server {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := engine.New(st, gateway, engine.DefaultConfig(), zap.NewNop())
	return New(eng, zap.NewNop())
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), v))
}

func startGame(t *testing.T, server *Server) string {
	t.Helper()
	recorder := doJSON(t, server, http.MethodPost, "/game/start", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, recorder, &payload)
	require.NotEmpty(t, payload.SessionID)
	return payload.SessionID
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	recorder := doJSON(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status": "ok"}`, recorder.Body.String())
}

func TestStartGame(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	recorder := doJSON(t, server, http.MethodPost, "/game/start", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		SessionID      string `json:"session_id"`
		DoormanMessage string `json:"doorman_message"`
		Score          int    `json:"current_score"`
		State          string `json:"game_state"`
	}
	decodeBody(t, recorder, &payload)

	assert.NotEmpty(t, payload.SessionID)
	assert.Equal(t, 30, payload.Score)
	assert.Equal(t, "active", payload.State)
	assert.Contains(t, payload.DoormanMessage, "Not on the list")
}

func TestSendMessage(t *testing.T) {
	server := newTestServer(t, &stubGateway{score: 10, reply: "Hm. Go on."})
	sessionID := startGame(t, server)

	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": sessionID, "message": "I booked table nine."})
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		SessionID      string `json:"session_id"`
		DoormanMessage string `json:"doorman_response"`
		ScoreDelta     int    `json:"score_delta"`
		Score          int    `json:"current_score"`
		State          string `json:"game_state"`
	}
	decodeBody(t, recorder, &payload)

	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, 10, payload.ScoreDelta)
	assert.Equal(t, 40, payload.Score)
	assert.Equal(t, "active", payload.State)
	assert.Equal(t, "Hm. Go on.", payload.DoormanMessage)
}

func TestMessageValidation(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	sessionID := startGame(t, server)

	tests := []struct {
		name string
		body any
	}{
		{"missing session id", map[string]string{"message": "hi"}},
		{"empty message", map[string]string{"session_id": sessionID, "message": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := doJSON(t, server, http.MethodPost, "/game/message", tt.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)

			var envelope struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			decodeBody(t, recorder, &envelope)
			assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
			assert.NotEmpty(t, envelope.Error.Message)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	req := httptest.NewRequest(http.MethodPost, "/game/message", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMessageUnknownSession(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": "ghost", "message": "hi"})

	assert.Equal(t, http.StatusNotFound, recorder.Code)

	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	decodeBody(t, recorder, &envelope)
	assert.Equal(t, "NOT_FOUND", envelope.Error.Code)
	assert.Equal(t, "ghost", envelope.Error.Details["session_id"])
}

func TestMessageAfterGameOver(t *testing.T) {
	server := newTestServer(t, &stubGateway{score: 25, reply: "Go in."})
	sessionID := startGame(t, server)

	// +25 per turn from 30 wins on the third turn.
	for i := 0; i < 3; i++ {
		recorder := doJSON(t, server, http.MethodPost, "/game/message",
			map[string]string{"session_id": sessionID, "message": fmt.Sprintf("turn %d", i+1)})
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": sessionID, "message": "one more"})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	decodeBody(t, recorder, &envelope)
	assert.Equal(t, "GAME_OVER", envelope.Error.Code)
	assert.Equal(t, "won", envelope.Error.Details["game_state"])
}

func TestTurnFailedMapsToBadGateway(t *testing.T) {
	server := newTestServer(t, &stubGateway{judgeErr: errors.New("model down")})
	sessionID := startGame(t, server)

	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": sessionID, "message": "hi"})

	assert.Equal(t, http.StatusBadGateway, recorder.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, recorder, &envelope)
	assert.Equal(t, "TURN_FAILED", envelope.Error.Code)
}

func TestStatusEndpoint(t *testing.T) {
	server := newTestServer(t, &stubGateway{score: 5, reply: "No."})
	sessionID := startGame(t, server)

	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": sessionID, "message": "hello"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, server, http.MethodGet, "/game/status/"+sessionID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		SessionID    string `json:"session_id"`
		Score        int    `json:"current_score"`
		State        string `json:"game_state"`
		MessageCount int    `json:"message_count"`
	}
	decodeBody(t, recorder, &payload)

	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, 35, payload.Score)
	assert.Equal(t, 1, payload.MessageCount)
}

func TestStatusUnknownSession(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	recorder := doJSON(t, server, http.MethodGet, "/game/status/ghost", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHistoryHidesJudgeReasoning(t *testing.T) {
	server := newTestServer(t, &stubGateway{score: 5, reply: "No."})
	sessionID := startGame(t, server)

	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": sessionID, "message": "hello"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, server, http.MethodGet, "/game/history/"+sessionID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		SessionID string `json:"session_id"`
		Messages  []map[string]any
	}
	decodeBody(t, recorder, &payload)

	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "user", payload.Messages[0]["role"])
	assert.Equal(t, float64(5), payload.Messages[0]["score_delta"])
	assert.NotContains(t, payload.Messages[0], "judge_reasoning")

	assert.Equal(t, "doorman", payload.Messages[1]["role"])
	assert.NotContains(t, payload.Messages[1], "score_delta", "doorman lines carry no delta")
}

func TestResumeRoundTrip(t *testing.T) {
	server := newTestServer(t, &stubGateway{score: 5, reply: "Keep talking."})
	sessionID := startGame(t, server)

	recorder := doJSON(t, server, http.MethodPost, "/game/message",
		map[string]string{"session_id": sessionID, "message": "hello"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, server, http.MethodPost, "/game/resume",
		map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		SessionID      string `json:"session_id"`
		DoormanMessage string `json:"doorman_message"`
		Score          int    `json:"current_score"`
		History        []map[string]any
	}
	decodeBody(t, recorder, &payload)

	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, 35, payload.Score)
	assert.Equal(t, "Keep talking.", payload.DoormanMessage)
	assert.Len(t, payload.History, 2)
}

func TestResumeRequiresSessionID(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	recorder := doJSON(t, server, http.MethodPost, "/game/resume", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestListSessions(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	first := startGame(t, server)
	second := startGame(t, server)

	recorder := doJSON(t, server, http.MethodGet, "/game/sessions", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload []struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, recorder, &payload)

	require.Len(t, payload, 2)
	ids := []string{payload[0].SessionID, payload[1].SessionID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &stubGateway{})
	recorder := doJSON(t, server, http.MethodGet, "/game/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
