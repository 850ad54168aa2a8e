package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"velvetrope/internal/game"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		score INTEGER NOT NULL,
		game_state TEXT NOT NULL,
		memory_summary TEXT NOT NULL DEFAULT '',
		last_compacted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		score_delta INTEGER,
		judge_reasoning TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a fresh session row, filling in timestamps.
func (s *SQLiteStore) CreateSession(session *game.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, score, game_state, memory_summary, last_compacted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Score, string(session.State), session.MemorySummary,
		session.LastCompacted, encodeTime(session.CreatedAt), encodeTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession loads one session or ErrSessionNotFound.
func (s *SQLiteStore) GetSession(sessionID string) (*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, score, game_state, memory_summary, last_compacted, created_at, updated_at
		 FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// ListSessions returns all sessions, most recently touched first.
func (s *SQLiteStore) ListSessions() ([]*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, score, game_state, memory_summary, last_compacted, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*game.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AppendTurn writes both turn messages and the session update in one
// transaction so a failed turn leaves no partial rows behind.
func (s *SQLiteStore) AppendTurn(sessionID string, user, doorman *game.Message, score int, state game.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, message := range []*game.Message{user, doorman} {
		message.SessionID = sessionID
		if message.CreatedAt.IsZero() {
			message.CreatedAt = now
		}
		if err := insertMessage(tx, message); err != nil {
			return err
		}
	}

	result, err := tx.Exec(
		`UPDATE sessions SET score = ?, game_state = ?, updated_at = ? WHERE id = ?`,
		score, string(state), encodeTime(now), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrSessionNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// UpdateMemory replaces the rolling summary and the compaction watermark.
func (s *SQLiteStore) UpdateMemory(sessionID, summary string, lastCompacted int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE sessions SET memory_summary = ?, last_compacted = ?, updated_at = ? WHERE id = ?`,
		summary, lastCompacted, encodeTime(time.Now().UTC()), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Messages returns the full transcript in creation order.
func (s *SQLiteStore) Messages(sessionID string) ([]game.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, score_delta, judge_reasoning, created_at
		 FROM messages WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// RecentMessages returns the newest limit messages in creation order.
func (s *SQLiteStore) RecentMessages(sessionID string, limit int) ([]game.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, score_delta, judge_reasoning, created_at
		 FROM (
			SELECT * FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// LastMessage returns the newest message for a role, or nil when none exists.
func (s *SQLiteStore) LastMessage(sessionID string, role game.Role) (*game.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, session_id, role, content, score_delta, judge_reasoning, created_at
		 FROM messages WHERE session_id = ? AND role = ? ORDER BY id DESC LIMIT 1`,
		sessionID, string(role))

	message, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return message, nil
}

// CountMessages counts messages for a role; an empty role counts everything.
func (s *SQLiteStore) CountMessages(sessionID string, role game.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var err error
	if role == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND role = ?`,
			sessionID, string(role)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func insertMessage(tx *sql.Tx, message *game.Message) error {
	var delta any
	if message.ScoreDelta != nil {
		delta = *message.ScoreDelta
	}
	result, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, score_delta, judge_reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		message.SessionID, string(message.Role), message.Content, delta,
		message.JudgeReasoning, encodeTime(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		message.ID = id
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*game.Session, error) {
	var session game.Session
	var state, createdAt, updatedAt string
	err := row.Scan(&session.ID, &session.Score, &state, &session.MemorySummary,
		&session.LastCompacted, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	session.State = game.State(state)
	session.CreatedAt = decodeTime(createdAt)
	session.UpdatedAt = decodeTime(updatedAt)
	return &session, nil
}

func scanMessage(row rowScanner) (*game.Message, error) {
	var message game.Message
	var role, createdAt string
	var delta sql.NullInt64
	err := row.Scan(&message.ID, &message.SessionID, &role, &message.Content,
		&delta, &message.JudgeReasoning, &createdAt)
	if err != nil {
		return nil, err
	}
	message.Role = game.Role(role)
	message.CreatedAt = decodeTime(createdAt)
	if delta.Valid {
		value := int(delta.Int64)
		message.ScoreDelta = &value
	}
	return &message, nil
}

func collectMessages(rows *sql.Rows) ([]game.Message, error) {
	var messages []game.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *message)
	}
	return messages, rows.Err()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
