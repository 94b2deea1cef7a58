package pooled

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// UpsertPlayerStats writes or merges a player's stats row via
// INSERT ... ON CONFLICT (player_id) DO UPDATE.
func (s *Store) UpsertPlayerStats(ctx context.Context, ps *domain.PlayerStats) error {
	pool, err := s.requireConnected("pooled.UpsertPlayerStats")
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = pool.Exec(ctx, `
		INSERT INTO player_stats (player_id, games_played, wins, losses, draws, illegal_move_rate,
			average_thinking_time, elo_rating, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (player_id) DO UPDATE SET
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			illegal_move_rate = EXCLUDED.illegal_move_rate,
			average_thinking_time = EXCLUDED.average_thinking_time,
			elo_rating = EXCLUDED.elo_rating,
			last_updated = EXCLUDED.last_updated`,
		ps.PlayerID, ps.GamesPlayed, ps.Wins, ps.Losses, ps.Draws, ps.IllegalMoveRate,
		ps.AverageThinkingTime, ps.EloRating, ps.LastUpdated,
	)
	if err != nil {
		return apperrors.Backend("pooled.UpsertPlayerStats", err)
	}
	return nil
}

func (s *Store) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	pool, err := s.requireConnected("pooled.GetPlayerStats")
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ps domain.PlayerStats
	err = pool.QueryRow(ctx, `
		SELECT player_id, games_played, wins, losses, draws, illegal_move_rate,
			average_thinking_time, elo_rating, last_updated
		FROM player_stats WHERE player_id = $1`, playerID,
	).Scan(&ps.PlayerID, &ps.GamesPlayed, &ps.Wins, &ps.Losses, &ps.Draws, &ps.IllegalMoveRate,
		&ps.AverageThinkingTime, &ps.EloRating, &ps.LastUpdated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("pooled.GetPlayerStats", err)
		}
		return nil, apperrors.Backend("pooled.GetPlayerStats", err)
	}
	return &ps, nil
}
