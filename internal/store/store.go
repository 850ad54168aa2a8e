// Package store persists sessions and their append-only transcripts.
package store

import (
	"errors"

	"velvetrope/internal/game"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence surface the engine depends on. Implementations
// must make AppendTurn atomic: the turn's two messages and the session update
// land together or not at all.
type Store interface {
	CreateSession(session *game.Session) error
	GetSession(sessionID string) (*game.Session, error)
	ListSessions() ([]*game.Session, error)

	// AppendTurn persists one completed turn: the user message, the doorman
	// reply, and the session's new score/state, in a single transaction.
	AppendTurn(sessionID string, user, doorman *game.Message, score int, state game.State) error

	// UpdateMemory replaces the rolling summary and the compaction watermark.
	UpdateMemory(sessionID, summary string, lastCompacted int) error

	Messages(sessionID string) ([]game.Message, error)
	RecentMessages(sessionID string, limit int) ([]game.Message, error)
	LastMessage(sessionID string, role game.Role) (*game.Message, error)
	CountMessages(sessionID string, role game.Role) (int, error)

	Close() error
}
