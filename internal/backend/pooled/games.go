package pooled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

func (s *Store) CreateGame(ctx context.Context, g *domain.Game) (string, error) {
	pool, err := s.requireConnected("pooled.CreateGame")
	if err != nil {
		return "", err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", apperrors.Backend("pooled.CreateGame", err)
	}
	defer tx.Rollback(ctx)

	metaBuf, err := json.Marshal(g.Metadata)
	if err != nil {
		return "", apperrors.Backend("pooled.CreateGame", err)
	}

	var outcomeResult, outcomeTermination *string
	var outcomeWinner *int
	if g.Outcome != nil {
		r := string(g.Outcome.Result)
		t := string(g.Outcome.Termination)
		outcomeResult, outcomeTermination = &r, &t
		outcomeWinner = g.Outcome.Winner
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO games (game_id, tournament_id, start_time, end_time, initial_fen, final_fen,
			outcome_result, outcome_winner, outcome_termination, total_moves, game_duration_seconds, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		g.GameID, g.TournamentID, g.StartTime, g.EndTime, g.InitialFEN, g.FinalFEN,
		outcomeResult, outcomeWinner, outcomeTermination, g.TotalMoves, g.GameDurationSeconds, metaBuf,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", apperrors.Duplicate("pooled.CreateGame", fmt.Errorf("game %q already exists", g.GameID))
		}
		return "", apperrors.Backend("pooled.CreateGame", err)
	}

	for pos, p := range g.Players {
		if err := insertPlayer(ctx, tx, g.GameID, pos, p); err != nil {
			return "", apperrors.Backend("pooled.CreateGame", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", apperrors.Backend("pooled.CreateGame", err)
	}
	return g.GameID, nil
}

func insertPlayer(ctx context.Context, tx pgx.Tx, gameID string, pos int, p domain.PlayerInfo) error {
	cfgBuf, err := json.Marshal(p.AgentConfig)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO players (game_id, position, player_id, model_name, model_provider, agent_type, agent_config, elo_rating)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		gameID, pos, p.PlayerID, p.ModelName, p.ModelProvider, p.AgentType, cfgBuf, p.EloRating,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	pool, err := s.requireConnected("pooled.GetGame")
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	g, err := s.scanGame(ctx, pool, id)
	if err != nil {
		return nil, err
	}
	players, err := s.loadPlayers(ctx, pool, id)
	if err != nil {
		return nil, apperrors.Backend("pooled.GetGame", err)
	}
	g.Players = players
	return g, nil
}

type execQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) scanGame(ctx context.Context, pool execQueryRower, id string) (*domain.Game, error) {
	row := pool.QueryRow(ctx, `
		SELECT game_id, tournament_id, start_time, end_time, initial_fen, final_fen,
			outcome_result, outcome_winner, outcome_termination, total_moves, game_duration_seconds, metadata
		FROM games WHERE game_id = $1`, id)

	var g domain.Game
	var metaBuf []byte
	var outcomeResult, outcomeTermination *string
	var outcomeWinner *int
	if err := row.Scan(&g.GameID, &g.TournamentID, &g.StartTime, &g.EndTime, &g.InitialFEN, &g.FinalFEN,
		&outcomeResult, &outcomeWinner, &outcomeTermination, &g.TotalMoves, &g.GameDurationSeconds, &metaBuf); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("pooled.GetGame", fmt.Errorf("game %q not found", id))
		}
		return nil, apperrors.Backend("pooled.GetGame", err)
	}
	if len(metaBuf) > 0 {
		if err := json.Unmarshal(metaBuf, &g.Metadata); err != nil {
			return nil, apperrors.Backend("pooled.GetGame", err)
		}
	}
	if outcomeResult != nil {
		g.Outcome = &domain.GameOutcome{
			Result:      domain.GameResult(*outcomeResult),
			Winner:      outcomeWinner,
			Termination: domain.TerminationReason(derefOr(outcomeTermination, "")),
		}
	}
	return &g, nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func (s *Store) loadPlayers(ctx context.Context, pool execQueryRower, gameID string) (map[int]domain.PlayerInfo, error) {
	rows, err := pool.Query(ctx, `
		SELECT position, player_id, model_name, model_provider, agent_type, agent_config, elo_rating
		FROM players WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]domain.PlayerInfo{}
	for rows.Next() {
		var pos int
		var p domain.PlayerInfo
		var cfgBuf []byte
		if err := rows.Scan(&pos, &p.PlayerID, &p.ModelName, &p.ModelProvider, &p.AgentType, &cfgBuf, &p.EloRating); err != nil {
			return nil, err
		}
		if len(cfgBuf) > 0 {
			if err := json.Unmarshal(cfgBuf, &p.AgentConfig); err != nil {
				return nil, err
			}
		}
		out[pos] = p
	}
	return out, rows.Err()
}

func (s *Store) UpdateGame(ctx context.Context, id string, updates map[string]any) (bool, error) {
	pool, err := s.requireConnected("pooled.UpdateGame")
	if err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if v, ok := updates["end_time"]; ok {
		if t, ok := v.(time.Time); ok {
			add("end_time", t)
		}
	}
	if v, ok := updates["outcome"]; ok {
		if o, ok := v.(*domain.GameOutcome); ok {
			add("outcome_result", string(o.Result))
			add("outcome_winner", o.Winner)
			add("outcome_termination", string(o.Termination))
		}
	}
	if v, ok := updates["final_fen"]; ok {
		if fen, ok := v.(string); ok {
			add("final_fen", fen)
		}
	}
	if v, ok := updates["total_moves"]; ok {
		if n, ok := v.(int); ok {
			add("total_moves", n)
		}
	}
	if v, ok := updates["game_duration_seconds"]; ok {
		if d, ok := v.(float64); ok {
			add("game_duration_seconds", d)
		}
	}
	if v, ok := updates["tournament_id"]; ok {
		if t, ok := v.(string); ok {
			add("tournament_id", t)
		}
	}
	if v, ok := updates["metadata"]; ok {
		if m, ok := v.(map[string]any); ok {
			buf, err := json.Marshal(m)
			if err != nil {
				return false, apperrors.Backend("pooled.UpdateGame", err)
			}
			add("metadata", buf)
		}
	}

	if len(sets) == 0 {
		return s.gameExists(ctx, pool, id)
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE games SET %s WHERE game_id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, apperrors.Backend("pooled.UpdateGame", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) gameExists(ctx context.Context, pool execQueryRower, id string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM games WHERE game_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperrors.Backend("pooled.UpdateGame", err)
	}
	return exists, nil
}

func (s *Store) DeleteGame(ctx context.Context, id string) (bool, error) {
	pool, err := s.requireConnected("pooled.DeleteGame")
	if err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := pool.Exec(ctx, `DELETE FROM games WHERE game_id = $1`, id)
	if err != nil {
		return false, apperrors.Backend("pooled.DeleteGame", err)
	}
	return tag.RowsAffected() > 0, nil
}
