package storagemgr

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
	"github.com/seshuthota/gamearena-store/internal/stats"
)

// UpdatePlayerStats writes a PlayerStats record directly, bypassing
// recomputation; used by restore/backfill callers that already hold a
// valid record.
func (m *Manager) UpdatePlayerStats(ctx context.Context, ps *domain.PlayerStats) error {
	if err := ps.Validate(); err != nil {
		return apperrors.Validation("storagemgr.UpdatePlayerStats", err)
	}
	if err := m.backend.UpsertPlayerStats(ctx, ps); err != nil {
		return wrapUnlessTyped("storagemgr.UpdatePlayerStats", err)
	}
	if m.engine != nil {
		m.engine.InvalidatePlayer(ps.PlayerID)
	}
	return nil
}

// GetPlayerStats returns NotFound when the player has no stored stats yet.
func (m *Manager) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	ps, err := m.backend.GetPlayerStats(ctx, playerID)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.GetPlayerStats", err)
	}
	return ps, nil
}

// CalculateAndUpdatePlayerStats recomputes the full PlayerStats record
// from scratch (outcome tallies plus illegal-move rate and average
// thinking time) and persists it. The Elo rating here is the stats
// engine's replayed trajectory; the compound complete-game write
// (afterGameCompletion) instead grafts on the exact symmetric incremental
// update so the two players' deltas stay equal and opposite.
func (m *Manager) CalculateAndUpdatePlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	ps, err := m.recomputePlayerStats(ctx, playerID)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.CalculateAndUpdatePlayerStats", err)
	}
	if err := m.backend.UpsertPlayerStats(ctx, ps); err != nil {
		return nil, wrapUnlessTyped("storagemgr.CalculateAndUpdatePlayerStats", err)
	}
	if m.engine != nil {
		m.engine.InvalidatePlayer(playerID)
	}
	return ps, nil
}

// recomputePlayerStats computes (but does not persist) a player's full
// PlayerStats record from scratch.
func (m *Manager) recomputePlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	result, err := m.engine.PlayerStatistics(ctx, playerID)
	if err != nil {
		return nil, err
	}

	illegalRate, avgThinking, err := m.moveQualityMetrics(ctx, playerID)
	if err != nil {
		return nil, err
	}

	ps := &domain.PlayerStats{
		PlayerID:            playerID,
		GamesPlayed:         result.GamesPlayed,
		Wins:                result.Wins,
		Losses:              result.Losses,
		Draws:               result.Draws,
		IllegalMoveRate:     illegalRate,
		AverageThinkingTime: avgThinking,
		EloRating:           result.CurrentElo,
		LastUpdated:         time.Now(),
	}
	if ps.EloRating == 0 {
		ps.EloRating = domain.DefaultElo
	}
	if err := ps.Validate(); err != nil {
		return nil, apperrors.Validation("storagemgr.recomputePlayerStats", err)
	}
	return ps, nil
}

// moveQualityMetrics loads every move this player made across their
// completed games and returns the illegal-move rate and average thinking
// time in milliseconds.
func (m *Manager) moveQualityMetrics(ctx context.Context, playerID string) (illegalRate, avgThinkingMS float64, err error) {
	games, err := m.backend.QueryGames(ctx, backend.GameFilter{PlayerID: &playerID}, -1, 0)
	if err != nil {
		return 0, 0, err
	}

	var total, illegal int
	var thinkingSum float64
	for _, g := range games {
		if !g.IsCompleted() {
			continue
		}
		pos, ok := gamePlayerPosition(g, playerID)
		if !ok {
			continue
		}
		moves, err := m.backend.GetMoves(ctx, g.GameID, nil)
		if err != nil {
			continue
		}
		for _, mv := range moves {
			if mv.Player != pos {
				continue
			}
			total++
			if !mv.IsLegal {
				illegal++
			}
			thinkingSum += float64(mv.ThinkingTimeMS)
		}
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(illegal) / float64(total), thinkingSum / float64(total), nil
}

func gamePlayerPosition(g *domain.Game, playerID string) (int, bool) {
	for pos, p := range g.Players {
		if p.PlayerID == playerID {
			return pos, true
		}
	}
	return 0, false
}

// UpdateEloRatings applies one Elo update for the (Black, White) pair of a
// completed game and persists both new ratings. Both players' pre-game
// ratings are loaded before either write, so the two deltas are computed
// against the same snapshot and stay exactly equal and opposite.
func (m *Manager) UpdateEloRatings(ctx context.Context, gameID string) (bool, error) {
	g, err := m.backend.GetGame(ctx, gameID)
	if err != nil {
		return false, wrapUnlessTyped("storagemgr.UpdateEloRatings", err)
	}
	whiteStats, blackStats, ok, err := m.computeEloUpdate(ctx, g)
	if err != nil {
		return false, wrapUnlessTyped("storagemgr.UpdateEloRatings", err)
	}
	if !ok {
		return false, nil
	}

	if err := m.backend.UpsertPlayerStats(ctx, whiteStats); err != nil {
		return false, wrapUnlessTyped("storagemgr.UpdateEloRatings", err)
	}
	if err := m.backend.UpsertPlayerStats(ctx, blackStats); err != nil {
		return false, wrapUnlessTyped("storagemgr.UpdateEloRatings", err)
	}
	return true, nil
}

// computeEloUpdate loads both players' current stored stats and returns
// updated (in-memory, not yet persisted) copies reflecting one symmetric
// Elo update for g. ok is false when g is not a completed, decided game or
// is missing a player.
func (m *Manager) computeEloUpdate(ctx context.Context, g *domain.Game) (white, black *domain.PlayerStats, ok bool, err error) {
	if !g.IsCompleted() || g.Outcome.Result == domain.ResultOngoing {
		return nil, nil, false, nil
	}

	blackInfo, has := g.Players[domain.Black]
	if !has {
		return nil, nil, false, nil
	}
	whiteInfo, has := g.Players[domain.White]
	if !has {
		return nil, nil, false, nil
	}

	blackStats, err := m.loadOrNewStats(ctx, blackInfo.PlayerID)
	if err != nil {
		return nil, nil, false, err
	}
	whiteStats, err := m.loadOrNewStats(ctx, whiteInfo.PlayerID)
	if err != nil {
		return nil, nil, false, err
	}

	var whiteScore float64
	switch g.Outcome.Result {
	case domain.ResultWhiteWins:
		whiteScore = 1
	case domain.ResultDraw:
		whiteScore = 0.5
	case domain.ResultBlackWins:
		whiteScore = 0
	}

	newWhite, newBlack := stats.ComputeEloUpdate(whiteStats.EloRating, blackStats.EloRating, whiteScore, domain.DefaultKFactor)
	now := time.Now()
	whiteStats.EloRating, whiteStats.LastUpdated = newWhite, now
	blackStats.EloRating, blackStats.LastUpdated = newBlack, now
	return &whiteStats, &blackStats, true, nil
}

func (m *Manager) loadOrNewStats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	ps, err := m.backend.GetPlayerStats(ctx, playerID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			fresh := domain.NewPlayerStats(playerID, time.Now())
			return fresh, nil
		}
		return domain.PlayerStats{}, err
	}
	return *ps, nil
}

// HeadToHead delegates to the statistics engine.
func (m *Manager) HeadToHead(ctx context.Context, p1, p2 string) (*stats.HeadToHeadResult, error) {
	r, err := m.engine.HeadToHead(ctx, p1, p2)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.HeadToHead", err)
	}
	return r, nil
}

// PerformanceTrends delegates to the statistics engine.
func (m *Manager) PerformanceTrends(ctx context.Context, playerID string, days int) ([]stats.DayBucket, error) {
	r, err := m.engine.PerformanceTrends(ctx, playerID, days, time.Now())
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.PerformanceTrends", err)
	}
	return r, nil
}

// UpdateAllPlayerStats recomputes and persists every player discoverable
// from the game history; a maintenance op, not called from the hot
// completion path. Recomputation is parallelized up to the given
// concurrency.
func (m *Manager) UpdateAllPlayerStats(ctx context.Context, concurrency int) (stats.BatchResult, error) {
	games, err := m.backend.QueryGames(ctx, backend.GameFilter{}, -1, 0)
	if err != nil {
		return stats.BatchResult{}, wrapUnlessTyped("storagemgr.UpdateAllPlayerStats", err)
	}
	ids := map[string]struct{}{}
	for _, g := range games {
		for _, p := range g.Players {
			ids[p.PlayerID] = struct{}{}
		}
	}
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	if concurrency <= 0 {
		concurrency = 4
	}
	start := time.Now()
	var processed, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range idList {
		id := id
		g.Go(func() error {
			if _, err := m.CalculateAndUpdatePlayerStats(gctx, id); err != nil {
				m.logger.Warnw("update-all-player-stats: player recompute failed", "player_id", id, "error", err)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&processed, 1)
			return nil
		})
	}
	_ = g.Wait()

	return stats.BatchResult{
		Total:     len(idList),
		Processed: int(processed),
		Failed:    int(failed),
		Elapsed:   time.Since(start),
	}, nil
}
