package domain

import (
	"fmt"
	"time"
)

// RethinkAttempt is a single retry cycle where the agent was re-prompted
// after an invalid or unparseable move.
type RethinkAttempt struct {
	AttemptNumber int
	PromptText    string
	RawResponse   string
	ParsedMove    *string
	WasLegal      bool
	Timestamp     time.Time
}

func (r RethinkAttempt) Validate() error {
	if r.AttemptNumber < 1 {
		return fmt.Errorf("attempt_number must be positive")
	}
	if r.PromptText == "" {
		return fmt.Errorf("prompt_text cannot be empty")
	}
	if r.RawResponse == "" {
		return fmt.Errorf("raw_response cannot be empty")
	}
	return nil
}

// Move is the complete record of a single ply in a game.
type Move struct {
	GameID      string
	MoveNumber  int
	Player      int // Black=0, White=1
	Timestamp   time.Time

	FENBefore  string
	FENAfter   string
	LegalMoves []string

	MoveSAN string
	MoveUCI string
	IsLegal bool

	PromptText      string
	RawResponse     string
	ParsedMove      *string
	ParsingSuccess  bool
	ParsingAttempts int

	ThinkingTimeMS int
	APICallTimeMS  int
	ParsingTimeMS  int

	RethinkAttempts []RethinkAttempt

	MoveQualityScore *float64
	BlunderFlag      bool

	ErrorType    *string
	ErrorMessage *string
}

// Validate enforces the Move-level invariants: required
// fields present, non-negative timings, parsing_attempts >= 1, and
// gap-free rethink numbering.
func (m *Move) Validate() error {
	if m.GameID == "" {
		return fmt.Errorf("game_id cannot be empty")
	}
	if m.MoveNumber < 1 {
		return fmt.Errorf("move_number must be positive")
	}
	if m.Player != Black && m.Player != White {
		return fmt.Errorf("player must be 0 or 1")
	}
	if m.FENBefore == "" {
		return fmt.Errorf("fen_before cannot be empty")
	}
	if m.FENAfter == "" {
		return fmt.Errorf("fen_after cannot be empty")
	}
	if m.MoveSAN == "" {
		return fmt.Errorf("move_san cannot be empty")
	}
	if m.MoveUCI == "" {
		return fmt.Errorf("move_uci cannot be empty")
	}
	if m.PromptText == "" {
		return fmt.Errorf("prompt_text cannot be empty")
	}
	if m.RawResponse == "" {
		return fmt.Errorf("raw_response cannot be empty")
	}
	if m.ParsingAttempts < 1 {
		return fmt.Errorf("parsing_attempts must be positive")
	}
	if m.ThinkingTimeMS < 0 || m.APICallTimeMS < 0 || m.ParsingTimeMS < 0 {
		return fmt.Errorf("timing values cannot be negative")
	}
	return validateRethinkNumbering(m.RethinkAttempts)
}

func validateRethinkNumbering(attempts []RethinkAttempt) error {
	for i, a := range attempts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rethink attempt %d: %w", i+1, err)
		}
		if a.AttemptNumber != i+1 {
			return fmt.Errorf("rethink attempts must be numbered 1..N without gaps, got %d at position %d", a.AttemptNumber, i+1)
		}
	}
	return nil
}

// TotalTimeMS sums the three timing components.
func (m *Move) TotalTimeMS() int {
	return m.ThinkingTimeMS + m.APICallTimeMS + m.ParsingTimeMS
}

// HadRethink reports whether this move involved any rethink attempts.
func (m *Move) HadRethink() bool {
	return len(m.RethinkAttempts) > 0
}

// Clone returns a deep-enough copy for safe return from read paths.
func (m *Move) Clone() *Move {
	if m == nil {
		return nil
	}
	cp := *m
	cp.LegalMoves = append([]string(nil), m.LegalMoves...)
	cp.RethinkAttempts = make([]RethinkAttempt, len(m.RethinkAttempts))
	copy(cp.RethinkAttempts, m.RethinkAttempts)
	if m.ParsedMove != nil {
		s := *m.ParsedMove
		cp.ParsedMove = &s
	}
	if m.MoveQualityScore != nil {
		s := *m.MoveQualityScore
		cp.MoveQualityScore = &s
	}
	if m.ErrorType != nil {
		s := *m.ErrorType
		cp.ErrorType = &s
	}
	if m.ErrorMessage != nil {
		s := *m.ErrorMessage
		cp.ErrorMessage = &s
	}
	return &cp
}
