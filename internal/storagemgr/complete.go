package storagemgr

import (
	"context"
	"fmt"
	"time"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// CompleteGame is the one compound write. It patches the game (end_time,
// outcome, final_fen, total_moves, duration) in the backend first; stats
// recomputation and the Elo update for both players are best-effort
// follow-ups that log on failure and never roll back the committed game
// completion.
func (m *Manager) CompleteGame(ctx context.Context, id string, outcome *domain.GameOutcome, finalFEN string, totalMoves int) (bool, error) {
	if err := outcome.Validate(); err != nil {
		return false, apperrors.Validation("storagemgr.CompleteGame", err)
	}
	if totalMoves < 0 {
		return false, apperrors.Validation("storagemgr.CompleteGame", fmt.Errorf("total_moves cannot be negative"))
	}

	txID := m.beginTx()
	defer m.endTx(txID)

	g, err := m.backend.GetGame(ctx, id)
	if err != nil {
		return false, wrapUnlessTyped("storagemgr.CompleteGame", err)
	}

	now := time.Now()
	durationSeconds := now.Sub(g.StartTime).Seconds()

	updates := map[string]any{
		"end_time":              now,
		"outcome":               outcome,
		"final_fen":             finalFEN,
		"total_moves":           totalMoves,
		"game_duration_seconds": durationSeconds,
	}
	ok, err := m.backend.UpdateGame(ctx, id, updates)
	if err != nil {
		return false, wrapUnlessTyped("storagemgr.CompleteGame", err)
	}
	if !ok {
		return false, apperrors.NotFound("storagemgr.CompleteGame", fmt.Errorf("game %q not found", id))
	}

	m.afterGameCompletion(ctx, id)
	return true, nil
}

// afterGameCompletion recomputes both players' PlayerStats (wins, losses,
// draws, illegal-move rate, average thinking time) and applies one Elo
// update for this game, logging (not propagating) any sub-failure.
//
// The Elo delta is computed once, in memory, against both players'
// pre-completion ratings before either write lands, then grafted onto the
// freshly recomputed stats in place of the stats engine's own trajectory
// estimate. Computing it from each player's independently recomputed
// trajectory would make the second write observe the first player's
// already-updated rating and skew the split away from equal-and-opposite.
func (m *Manager) afterGameCompletion(ctx context.Context, gameID string) {
	g, err := m.backend.GetGame(ctx, gameID)
	if err != nil {
		m.logger.Warnw("post-completion reload failed", "game_id", gameID, "error", err)
		return
	}

	whiteElo, blackElo, hasElo, err := m.computeEloUpdate(ctx, g)
	if err != nil {
		m.logger.Warnw("post-completion elo update failed", "game_id", gameID, "error", err)
	}

	for pos, p := range g.Players {
		ps, err := m.recomputePlayerStats(ctx, p.PlayerID)
		if err != nil {
			m.logger.Warnw("post-completion stats recompute failed", "game_id", gameID, "player_id", p.PlayerID, "error", err)
			continue
		}
		if hasElo {
			if pos == domain.White {
				ps.EloRating, ps.LastUpdated = whiteElo.EloRating, whiteElo.LastUpdated
			} else {
				ps.EloRating, ps.LastUpdated = blackElo.EloRating, blackElo.LastUpdated
			}
		}
		if err := m.backend.UpsertPlayerStats(ctx, ps); err != nil {
			m.logger.Warnw("post-completion stats persist failed", "game_id", gameID, "player_id", p.PlayerID, "error", err)
		}
	}

	m.invalidatePlayerCaches(g)
}

func (m *Manager) invalidatePlayerCaches(g *domain.Game) {
	if m.engine == nil {
		return
	}
	for _, p := range g.Players {
		m.engine.InvalidatePlayer(p.PlayerID)
	}
	m.engine.InvalidateLeaderboard()
}
