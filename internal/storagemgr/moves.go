package storagemgr

import (
	"context"
	"fmt"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// AddMove validates a move and delegates to the backend.
func (m *Manager) AddMove(ctx context.Context, mv *domain.Move) (int64, error) {
	if err := mv.Validate(); err != nil {
		return 0, apperrors.Validation("storagemgr.AddMove", err)
	}
	id, err := m.backend.AddMove(ctx, mv)
	if err != nil {
		return 0, wrapUnlessTyped("storagemgr.AddMove", err)
	}
	return id, nil
}

// BatchResult reports how many moves in a batch were stored vs. skipped.
type BatchResult struct {
	Accepted int
	Skipped  int
	Errors   []error
}

// AddMovesBatch never fails atomically on one bad move: each move is
// validated independently, invalid moves are counted and skipped, and the
// valid subset is still stored. The move stream is append-only; progress
// beats loss-free here.
func (m *Manager) AddMovesBatch(ctx context.Context, moves []*domain.Move) (BatchResult, error) {
	var result BatchResult
	for i, mv := range moves {
		if err := mv.Validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("move %d: %w", i, err))
			continue
		}
		if _, err := m.backend.AddMove(ctx, mv); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("move %d: %w", i, err))
			continue
		}
		result.Accepted++
	}
	return result, nil
}

// GetMoves returns the moves for a game, optionally capped at limit.
func (m *Manager) GetMoves(ctx context.Context, gameID string, limit *int) ([]*domain.Move, error) {
	moves, err := m.backend.GetMoves(ctx, gameID, limit)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.GetMoves", err)
	}
	return moves, nil
}

// GetMove returns the single move identified by (game, number, player).
func (m *Manager) GetMove(ctx context.Context, gameID string, number, player int) (*domain.Move, error) {
	mv, err := m.backend.GetMove(ctx, gameID, number, player)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.GetMove", err)
	}
	return mv, nil
}

// MoveFilters is the closed predicate vocabulary for GetMovesWithFilters;
// all set fields compose with logical AND.
type MoveFilters struct {
	IsLegal        *bool
	ParsingSuccess *bool
	HasRethink     *bool // derived: len(rethink_attempts) > 0
	BlunderFlag    *bool
	MinThinkingMS  *int
	MaxThinkingMS  *int
	Player         *int
}

func (f MoveFilters) matches(mv *domain.Move) bool {
	if f.IsLegal != nil && mv.IsLegal != *f.IsLegal {
		return false
	}
	if f.ParsingSuccess != nil && mv.ParsingSuccess != *f.ParsingSuccess {
		return false
	}
	if f.HasRethink != nil && mv.HadRethink() != *f.HasRethink {
		return false
	}
	if f.BlunderFlag != nil && mv.BlunderFlag != *f.BlunderFlag {
		return false
	}
	if f.MinThinkingMS != nil && mv.ThinkingTimeMS < *f.MinThinkingMS {
		return false
	}
	if f.MaxThinkingMS != nil && mv.ThinkingTimeMS > *f.MaxThinkingMS {
		return false
	}
	if f.Player != nil && mv.Player != *f.Player {
		return false
	}
	return true
}

// GetMovesWithFilters loads every move for a game and applies the closed
// predicate set in memory; neither backend indexes these dimensions
// individually, so filtering happens above the Backend interface.
func (m *Manager) GetMovesWithFilters(ctx context.Context, gameID string, f MoveFilters) ([]*domain.Move, error) {
	moves, err := m.backend.GetMoves(ctx, gameID, nil)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.GetMovesWithFilters", err)
	}
	out := make([]*domain.Move, 0, len(moves))
	for _, mv := range moves {
		if f.matches(mv) {
			out = append(out, mv)
		}
	}
	return out, nil
}

// RethinkOutcome reports whether AddRethinkAttempt was applied directly or
// must be buffered by the caller because the parent move does not exist
// yet.
type RethinkOutcome int

const (
	RethinkApplied RethinkOutcome = iota
	RethinkOrphaned
)

// AddRethinkAttempt validates the attempt and asks the backend to append it
// to its parent move. When the backend reports the parent move absent (it
// then writes nothing, never a sentinel row), it returns RethinkOrphaned so
// the collector can buffer the attempt and replay it once the move arrives.
func (m *Manager) AddRethinkAttempt(ctx context.Context, gameID string, number, player int, a *domain.RethinkAttempt) (RethinkOutcome, error) {
	if err := a.Validate(); err != nil {
		return RethinkApplied, apperrors.Validation("storagemgr.AddRethinkAttempt", err)
	}
	ok, err := m.backend.AppendRethinkAttempt(ctx, gameID, number, player, a)
	if err != nil {
		return RethinkApplied, wrapUnlessTyped("storagemgr.AddRethinkAttempt", err)
	}
	if !ok {
		return RethinkOrphaned, nil
	}
	return RethinkApplied, nil
}

// MoveIntegrityReport is the result of ValidateMoveIntegrity.
type MoveIntegrityReport struct {
	GameID            string
	TotalMoves        int
	Valid             bool
	Problems          []string
	OrphanedMoveCount int
}

// ValidateMoveIntegrity checks move-number continuity (unique 1..N, one
// per ply), player alternation starting from player 0 on move 1,
// required-field presence, and gap-free rethink numbering across a game's
// full move list, plus the store-wide orphaned-move count.
func (m *Manager) ValidateMoveIntegrity(ctx context.Context, gameID string) (*MoveIntegrityReport, error) {
	moves, err := m.backend.GetMoves(ctx, gameID, nil)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.ValidateMoveIntegrity", err)
	}

	report := &MoveIntegrityReport{GameID: gameID, TotalMoves: len(moves), Valid: true}

	for i, mv := range moves {
		expectedNumber := i + 1
		expectedPlayer := (expectedNumber - 1) % 2
		if mv.MoveNumber != expectedNumber {
			report.Valid = false
			report.Problems = append(report.Problems, fmt.Sprintf("expected move_number %d, got %d", expectedNumber, mv.MoveNumber))
		}
		if mv.Player != expectedPlayer {
			report.Valid = false
			report.Problems = append(report.Problems, fmt.Sprintf("move %d: expected player %d, got %d", mv.MoveNumber, expectedPlayer, mv.Player))
		}
		if mv.FENBefore == "" || mv.FENAfter == "" {
			report.Valid = false
			report.Problems = append(report.Problems, fmt.Sprintf("move %d: missing FEN", mv.MoveNumber))
		}
		if mv.MoveSAN == "" || mv.MoveUCI == "" {
			report.Valid = false
			report.Problems = append(report.Problems, fmt.Sprintf("move %d: missing notation", mv.MoveNumber))
		}
		for j, a := range mv.RethinkAttempts {
			if a.AttemptNumber != j+1 {
				report.Valid = false
				report.Problems = append(report.Problems, fmt.Sprintf("move %d: rethink attempts not gap-free", mv.MoveNumber))
				break
			}
		}
	}

	orphaned, err := m.backend.CountOrphanedMoves(ctx)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.ValidateMoveIntegrity", err)
	}
	report.OrphanedMoveCount = orphaned

	return report, nil
}
