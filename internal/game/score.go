package game

// Process-wide game constants. Clients mirroring these must match.
const (
	StartingScore = 30
	WinThreshold  = 100
	LoseThreshold = -50

	// MaxDeltaPerTurn bounds a single judged delta so one turn can never
	// decide the game outright and a malformed judgment cannot corrupt state.
	MaxDeltaPerTurn = 25

	// MaxMessageWords and MaxMessageChars cap user input. Enforced server-side
	// even though front ends enforce them too.
	MaxMessageWords = 150
	MaxMessageChars = 750
)

// Scoring applies judged deltas to a session score and resolves the
// resulting state. Pure and deterministic; callers must not invoke Apply on a
// session that already ended.
type Scoring struct {
	Win      int
	Lose     int
	MaxDelta int
}

// DefaultScoring returns the process-wide thresholds.
func DefaultScoring() Scoring {
	return Scoring{Win: WinThreshold, Lose: LoseThreshold, MaxDelta: MaxDeltaPerTurn}
}

// ClampDelta bounds a judged delta to [-MaxDelta, +MaxDelta].
func (s Scoring) ClampDelta(delta int) int {
	if delta > s.MaxDelta {
		return s.MaxDelta
	}
	if delta < -s.MaxDelta {
		return -s.MaxDelta
	}
	return delta
}

// Apply clamps delta, adds it to score, and resolves the new state.
// WON takes priority over LOST by convention.
func (s Scoring) Apply(score, delta int) (int, State) {
	newScore := score + s.ClampDelta(delta)
	return newScore, s.Resolve(newScore)
}

// Resolve maps a score to its state.
func (s Scoring) Resolve(score int) State {
	if score >= s.Win {
		return StateWon
	}
	if score <= s.Lose {
		return StateLost
	}
	return StateActive
}
