// Package server exposes the game engine over HTTP. It owns routing, request
// decoding, and the error envelope; all game logic stays in the engine.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"velvetrope/internal/engine"
	"velvetrope/internal/game"
)

// Server is the HTTP front for the engine.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
	mux    *http.ServeMux
}

// New builds the server and its routes.
func New(eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: eng, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /game/start", s.handleStart)
	s.mux.HandleFunc("POST /game/resume", s.handleResume)
	s.mux.HandleFunc("POST /game/message", s.handleMessage)
	s.mux.HandleFunc("GET /game/status/{id}", s.handleStatus)
	s.mux.HandleFunc("GET /game/history/{id}", s.handleHistory)
	s.mux.HandleFunc("GET /game/sessions", s.handleSessions)

	return s
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Start(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type resumeRequest struct {
	SessionID string `json:"session_id"`
}

// resumeResponse extends the start payload with the persisted transcript.
type resumeResponse struct {
	*engine.StartResult
	History []historyItem `json:"history"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.writeError(w, game.NewValidationError("session_id is required.", map[string]any{"field": "session_id"}))
		return
	}
	result, err := s.engine.Resume(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{StartResult: result, History: toHistoryItems(result.History)})
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.writeError(w, game.NewValidationError("session_id is required.", map[string]any{"field": "session_id"}))
		return
	}
	result, err := s.engine.Submit(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type historyResponse struct {
	SessionID string        `json:"session_id"`
	Score     int           `json:"current_score"`
	State     game.State    `json:"game_state"`
	Messages  []historyItem `json:"messages"`
}

// historyItem is the transcript view clients see; judge reasoning stays
// server-side.
type historyItem struct {
	Role       game.Role `json:"role"`
	Content    string    `json:"content"`
	ScoreDelta *int      `json:"score_delta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.GetHistory(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		SessionID: history.SessionID,
		Score:     history.Score,
		State:     history.State,
		Messages:  toHistoryItems(history.Messages),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions, err := s.engine.ListSessions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func toHistoryItems(messages []game.Message) []historyItem {
	items := make([]historyItem, 0, len(messages))
	for _, message := range messages {
		items = append(items, historyItem{
			Role:       message.Role,
			Content:    message.Content,
			ScoreDelta: message.ScoreDelta,
			CreatedAt:  message.CreatedAt,
		})
	}
	return items
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, game.NewValidationError("Invalid request body.", map[string]any{"reason": err.Error()}))
		return false
	}
	return true
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps stable error codes to HTTP status.
func statusFor(code string) int {
	switch code {
	case game.CodeValidation:
		return http.StatusBadRequest
	case game.CodeNotFound:
		return http.StatusNotFound
	case game.CodeGameOver:
		return http.StatusConflict
	case game.CodeTurnFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := game.CodeOf(err)
	body := errorBody{Code: code, Message: "Internal error."}

	var ge *game.Error
	if errors.As(err, &ge) {
		body.Message = ge.Message
		body.Details = ge.Details
	}

	s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	writeJSON(w, statusFor(code), errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
