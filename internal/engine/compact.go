package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"velvetrope/internal/game"
)

// maybeCompact folds aged messages into the rolling summary once enough have
// accumulated past the verbatim window. Runs after a turn's persistence has
// already succeeded, so failures here are logged and retried on the next
// qualifying turn, never surfaced to the caller.
func (e *Engine) maybeCompact(ctx context.Context, sessionID string) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		e.logger.Warn("compaction skipped: session reload failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	messages, err := e.store.Messages(sessionID)
	if err != nil {
		e.logger.Warn("compaction skipped: history load failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	total := len(messages)
	if total-session.LastCompacted <= e.config.CompactionThreshold {
		return
	}

	// Everything older than the verbatim window and not yet summarized.
	cutoff := total - e.config.RecentWindow
	if cutoff <= session.LastCompacted {
		return
	}
	batch := messages[session.LastCompacted:cutoff]

	transcript := formatCompactionTranscript(messages, session.LastCompacted, cutoff)
	newMemory, err := e.gateway.Summarize(ctx, session.MemorySummary, transcript)
	if err != nil {
		e.logger.Warn("compaction failed, will retry on a later turn",
			zap.String("session_id", sessionID),
			zap.Int("batch", len(batch)),
			zap.Error(err))
		return
	}

	if err := e.store.UpdateMemory(sessionID, newMemory, cutoff); err != nil {
		e.logger.Warn("compaction write failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	e.logger.Info("history compacted",
		zap.String("session_id", sessionID),
		zap.Int("folded", len(batch)),
		zap.Int("last_compacted", cutoff))
}

// formatCompactionTranscript renders messages[start:end) as turn-numbered
// lines. Turn numbers count user messages across the whole transcript so the
// memory's claim tags stay stable between compactions.
func formatCompactionTranscript(messages []game.Message, start, end int) string {
	turn := 0
	var lines []string
	for idx, message := range messages {
		if message.Role == game.RoleUser {
			turn++
		}
		if idx < start || idx >= end {
			continue
		}
		speaker := "Viktor"
		if message.Role == game.RoleUser {
			speaker = "User"
		}
		lines = append(lines, fmt.Sprintf("Turn %d - %s: %s", turn, speaker, message.Content))
	}
	return strings.Join(lines, "\n")
}
