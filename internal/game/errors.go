package game

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced to clients. Every failure the engine reports
// maps to exactly one of these.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeGameOver   = "GAME_OVER"
	CodeTurnFailed = "TURN_FAILED"
	CodeInternal   = "INTERNAL_ERROR"
)

// Agent-level sentinels. The gateway wraps upstream failures with these so
// the orchestrator can tell which role fell over without parsing strings.
var (
	ErrJudgment      = errors.New("judgment failed")
	ErrGeneration    = errors.New("generation failed")
	ErrSummarization = errors.New("summarization failed")
)

// Error is a game-level error with a stable code and optional details.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewValidationError rejects bad input before any agent call is made.
func NewValidationError(message string, details map[string]any) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// NewNotFoundError reports an unknown session id.
func NewNotFoundError(sessionID string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "Session not found.",
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewGameOverError rejects a turn on a session that already ended.
func NewGameOverError(state State) *Error {
	return &Error{
		Code:    CodeGameOver,
		Message: "Game already ended.",
		Details: map[string]any{"game_state": string(state)},
	}
}

// NewTurnFailedError wraps an upstream or store failure after which the engine
// guarantees no partial state was persisted.
func NewTurnFailedError(cause error) *Error {
	return &Error{
		Code:    CodeTurnFailed,
		Message: "Turn could not be completed; no state was changed. Resubmit the same message.",
		cause:   cause,
	}
}

// CodeOf extracts the stable code from err, or CodeInternal if err is not a
// game error.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}
