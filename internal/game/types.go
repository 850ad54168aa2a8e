// Package game holds the doorman game's domain model: sessions, messages,
// scoring rules, and the error taxonomy shared by the engine and the HTTP layer.
package game

import "time"

// State is the lifecycle state of a session. Once a session leaves ACTIVE
// it never returns; WON and LOST are terminal.
type State string

const (
	StateActive State = "active"
	StateWon    State = "won"
	StateLost   State = "lost"
)

// Terminal reports whether the state ends the game.
func (s State) Terminal() bool {
	return s == StateWon || s == StateLost
}

// Role identifies who spoke a message.
type Role string

const (
	RoleUser    Role = "user"
	RoleDoorman Role = "doorman"
)

// Session is the aggregate the engine mutates one turn at a time. The store
// persists it but never changes it on its own.
type Session struct {
	ID            string    `json:"session_id"`
	Score         int       `json:"score"`
	State         State     `json:"game_state"`
	MemorySummary string    `json:"-"`
	LastCompacted int       `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"-"`
}

// Message is one line of the transcript. Messages are append-only; only user
// messages carry a judged score delta.
type Message struct {
	ID             int64     `json:"-"`
	SessionID      string    `json:"-"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ScoreDelta     *int      `json:"score_delta,omitempty"`
	JudgeReasoning string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionMemory is the structured rolling summary the compactor maintains.
// The judge reads it to catch lies and contradictions after the raw turns
// have aged out of the prompt window.
type SessionMemory struct {
	ConversationState string          `json:"conversation_state"`
	Claims            []Claim         `json:"claims"`
	Contradictions    []Contradiction `json:"contradictions"`
	OpenThreads       []string        `json:"open_threads"`
}

// Claim records something the player stated, tagged with the turn it was made.
type Claim struct {
	Claim string `json:"claim"`
	Turn  int    `json:"turn"`
}

// Contradiction pairs two claims that cannot both be true.
type Contradiction struct {
	OriginalClaim      string `json:"original_claim"`
	ContradictingClaim string `json:"contradicting_claim"`
	Turns              []int  `json:"turns"`
}
