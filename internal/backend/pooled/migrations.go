package pooled

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/backend"
)

// Migrations is the ordered list of pooled-backend schema migrations:
// core tables, secondary indexes, then GIN indexes over the JSONB columns.
var Migrations = []backend.Migration{
	{
		Version: 1,
		Name:    "create_core_tables",
		Up: `
CREATE TABLE IF NOT EXISTS games (
    game_id TEXT PRIMARY KEY,
    tournament_id TEXT,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ,
    initial_fen TEXT NOT NULL,
    final_fen TEXT,
    outcome_result TEXT,
    outcome_winner INT,
    outcome_termination TEXT,
    total_moves INT NOT NULL DEFAULT 0,
    game_duration_seconds DOUBLE PRECISION,
    metadata JSONB
);

CREATE TABLE IF NOT EXISTS players (
    game_id TEXT NOT NULL REFERENCES games(game_id) ON DELETE CASCADE,
    position INT NOT NULL,
    player_id TEXT NOT NULL,
    model_name TEXT NOT NULL,
    model_provider TEXT NOT NULL,
    agent_type TEXT NOT NULL,
    agent_config JSONB,
    elo_rating DOUBLE PRECISION,
    PRIMARY KEY (game_id, position)
);

CREATE TABLE IF NOT EXISTS moves (
    id BIGSERIAL PRIMARY KEY,
    game_id TEXT NOT NULL REFERENCES games(game_id) ON DELETE CASCADE,
    move_number INT NOT NULL,
    player INT NOT NULL,
    move_timestamp TIMESTAMPTZ NOT NULL,
    fen_before TEXT NOT NULL,
    fen_after TEXT NOT NULL,
    legal_moves JSONB,
    move_san TEXT NOT NULL,
    move_uci TEXT NOT NULL,
    is_legal BOOLEAN NOT NULL,
    prompt_text TEXT NOT NULL,
    raw_response TEXT NOT NULL,
    parsed_move TEXT,
    parsing_success BOOLEAN NOT NULL,
    parsing_attempts INT NOT NULL,
    thinking_time_ms INT NOT NULL,
    api_call_time_ms INT NOT NULL,
    parsing_time_ms INT NOT NULL,
    move_quality_score DOUBLE PRECISION,
    blunder_flag BOOLEAN NOT NULL DEFAULT FALSE,
    error_type TEXT,
    error_message TEXT,
    UNIQUE (game_id, move_number, player)
);

CREATE TABLE IF NOT EXISTS rethink_attempts (
    id BIGSERIAL PRIMARY KEY,
    move_id BIGINT NOT NULL REFERENCES moves(id) ON DELETE CASCADE,
    attempt_number INT NOT NULL,
    prompt_text TEXT NOT NULL,
    raw_response TEXT NOT NULL,
    parsed_move TEXT,
    was_legal BOOLEAN NOT NULL,
    attempt_timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS player_stats (
    player_id TEXT PRIMARY KEY,
    games_played INT NOT NULL DEFAULT 0,
    wins INT NOT NULL DEFAULT 0,
    losses INT NOT NULL DEFAULT 0,
    draws INT NOT NULL DEFAULT 0,
    illegal_move_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_thinking_time DOUBLE PRECISION NOT NULL DEFAULT 0,
    elo_rating DOUBLE PRECISION NOT NULL DEFAULT 1200,
    last_updated TIMESTAMPTZ NOT NULL
);
`,
		Down: `
DROP TABLE IF EXISTS rethink_attempts;
DROP TABLE IF EXISTS moves;
DROP TABLE IF EXISTS players;
DROP TABLE IF EXISTS player_stats;
DROP TABLE IF EXISTS games;
`,
	},
	{
		Version: 2,
		Name:    "secondary_indexes",
		Up: `
CREATE INDEX IF NOT EXISTS idx_games_tournament_id ON games(tournament_id);
CREATE INDEX IF NOT EXISTS idx_games_start_time ON games(start_time);
CREATE INDEX IF NOT EXISTS idx_games_outcome_result ON games(outcome_result);
CREATE INDEX IF NOT EXISTS idx_moves_game_id ON moves(game_id);
CREATE INDEX IF NOT EXISTS idx_moves_player ON moves(player);
CREATE INDEX IF NOT EXISTS idx_players_player_id ON players(player_id);
CREATE INDEX IF NOT EXISTS idx_rethink_attempts_move_id ON rethink_attempts(move_id);
`,
		Down: `
DROP INDEX IF EXISTS idx_games_tournament_id;
DROP INDEX IF EXISTS idx_games_start_time;
DROP INDEX IF EXISTS idx_games_outcome_result;
DROP INDEX IF EXISTS idx_moves_game_id;
DROP INDEX IF EXISTS idx_moves_player;
DROP INDEX IF EXISTS idx_players_player_id;
DROP INDEX IF EXISTS idx_rethink_attempts_move_id;
`,
	},
	{
		Version: 3,
		Name:    "json_gin_indexes",
		Up: `
CREATE INDEX IF NOT EXISTS idx_games_metadata_gin ON games USING GIN (metadata);
CREATE INDEX IF NOT EXISTS idx_players_agent_config_gin ON players USING GIN (agent_config);
`,
		Down: `
DROP INDEX IF EXISTS idx_games_metadata_gin;
DROP INDEX IF EXISTS idx_players_agent_config_gin;
`,
	},
}

// InitSchema applies every pending migration, each inside its own
// transaction, recording applied versions in schema_migrations.
func (s *Store) InitSchema(ctx context.Context) error {
	pool, err := s.requireConnected("pooled.InitSchema")
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL
);`); err != nil {
		return apperrors.Backend("pooled.InitSchema", err)
	}

	applied := map[int]bool{}
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return apperrors.Backend("pooled.InitSchema", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return apperrors.Backend("pooled.InitSchema", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, pool, m); err != nil {
			return apperrors.Backend(fmt.Sprintf("pooled.InitSchema migration %d", m.Version), err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, pool interface {
	Begin(context.Context) (pgx.Tx, error)
}, m backend.Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
		m.Version, m.Name, time.Now(),
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
