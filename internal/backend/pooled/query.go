package pooled

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// buildFilterSQL translates the closed GameFilter vocabulary into a
// parameterized WHERE clause, mirroring the predicates embedded.matches
// applies in memory. player_id and players-list both join against players.
func buildFilterSQL(f backend.GameFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.TournamentID != nil {
		add("g.tournament_id = $%d", *f.TournamentID)
	}
	if f.StartAfter != nil {
		add("g.start_time >= $%d", *f.StartAfter)
	}
	if f.EndBefore != nil {
		add("g.end_time IS NOT NULL AND g.end_time <= $%d", *f.EndBefore)
	}
	if f.Result != nil {
		add("g.outcome_result = $%d", string(*f.Result))
	}
	if f.PlayerID != nil {
		add("EXISTS (SELECT 1 FROM players p WHERE p.game_id = g.game_id AND p.player_id = $%d)", *f.PlayerID)
	}
	for _, pid := range f.Players {
		add("EXISTS (SELECT 1 FROM players p WHERE p.game_id = g.game_id AND p.player_id = $%d)", pid)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) QueryGames(ctx context.Context, f backend.GameFilter, limit, offset int) ([]*domain.Game, error) {
	pool, err := s.requireConnected("pooled.QueryGames")
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := buildFilterSQL(f)
	sql := `SELECT g.game_id, g.tournament_id, g.start_time, g.end_time, g.initial_fen, g.final_fen,
			g.outcome_result, g.outcome_winner, g.outcome_termination, g.total_moves, g.game_duration_seconds, g.metadata
		FROM games g` + where + ` ORDER BY g.start_time`

	if limit >= 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperrors.Backend("pooled.QueryGames", err)
	}
	defer rows.Close()

	var ids []string
	var games []*domain.Game
	for rows.Next() {
		g, _, err := scanGameRow(rows)
		if err != nil {
			return nil, apperrors.Backend("pooled.QueryGames", err)
		}
		games = append(games, g)
		ids = append(ids, g.GameID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Backend("pooled.QueryGames", err)
	}

	for i, id := range ids {
		players, err := s.loadPlayers(ctx, pool, id)
		if err != nil {
			return nil, apperrors.Backend("pooled.QueryGames", err)
		}
		games[i].Players = players
	}
	return games, nil
}

// scanGameRow is scanGame's row-scanning logic factored out for use against
// pgx.Rows (multi-row queries) rather than a single pgx.Row.
func scanGameRow(rows interface {
	Scan(dest ...any) error
}) (*domain.Game, string, error) {
	var g domain.Game
	var metaBuf []byte
	var outcomeResult, outcomeTermination *string
	var outcomeWinner *int
	if err := rows.Scan(&g.GameID, &g.TournamentID, &g.StartTime, &g.EndTime, &g.InitialFEN, &g.FinalFEN,
		&outcomeResult, &outcomeWinner, &outcomeTermination, &g.TotalMoves, &g.GameDurationSeconds, &metaBuf); err != nil {
		return nil, "", err
	}
	if len(metaBuf) > 0 {
		if err := json.Unmarshal(metaBuf, &g.Metadata); err != nil {
			return nil, "", err
		}
	}
	if outcomeResult != nil {
		g.Outcome = &domain.GameOutcome{
			Result:      domain.GameResult(*outcomeResult),
			Winner:      outcomeWinner,
			Termination: domain.TerminationReason(derefOr(outcomeTermination, "")),
		}
	}
	return &g, g.GameID, nil
}

func (s *Store) CountGames(ctx context.Context, f backend.GameFilter) (int, error) {
	pool, err := s.requireConnected("pooled.CountGames")
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := buildFilterSQL(f)
	sql := `SELECT COUNT(*) FROM games g` + where

	var count int
	if err := pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, apperrors.Backend("pooled.CountGames", err)
	}
	return count, nil
}

func (s *Store) DeleteGamesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	pool, err := s.requireConnected("pooled.DeleteGamesOlderThan")
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := pool.Exec(ctx, `DELETE FROM games WHERE start_time < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Backend("pooled.DeleteGamesOlderThan", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Stats(ctx context.Context) (backend.BackendStats, error) {
	pool, err := s.requireConnected("pooled.Stats")
	if err != nil {
		return backend.BackendStats{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out := backend.BackendStats{BackendType: "pooled"}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM games`).Scan(&out.GameCount); err != nil {
		return backend.BackendStats{}, apperrors.Backend("pooled.Stats", err)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM moves`).Scan(&out.MoveCount); err != nil {
		return backend.BackendStats{}, apperrors.Backend("pooled.Stats", err)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(DISTINCT player_id) FROM players`).Scan(&out.PlayerCount); err != nil {
		return backend.BackendStats{}, apperrors.Backend("pooled.Stats", err)
	}
	var sizeBytes int64
	if err := pool.QueryRow(ctx, `SELECT pg_database_size(current_database())`).Scan(&sizeBytes); err != nil {
		return backend.BackendStats{}, apperrors.Backend("pooled.Stats", err)
	}
	out.SizeBytes = sizeBytes

	stat := pool.Stat()
	out.PoolInfo = map[string]any{
		"total_conns":    stat.TotalConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
		"acquired_conns": stat.AcquiredConns(),
	}
	return out, nil
}
