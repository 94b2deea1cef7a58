package pooled

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

func (s *Store) AddMove(ctx context.Context, m *domain.Move) (int64, error) {
	pool, err := s.requireConnected("pooled.AddMove")
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, apperrors.Backend("pooled.AddMove", err)
	}
	defer tx.Rollback(ctx)

	id, err := insertMove(ctx, tx, m)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperrors.Duplicate("pooled.AddMove", fmt.Errorf(
				"move (%s, %d, %d) already exists", m.GameID, m.MoveNumber, m.Player))
		}
		return 0, apperrors.Backend("pooled.AddMove", err)
	}

	for _, a := range m.RethinkAttempts {
		if err := insertRethink(ctx, tx, id, a); err != nil {
			return 0, apperrors.Backend("pooled.AddMove", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperrors.Backend("pooled.AddMove", err)
	}
	return id, nil
}

func insertMove(ctx context.Context, tx pgx.Tx, m *domain.Move) (int64, error) {
	legalBuf, err := json.Marshal(m.LegalMoves)
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO moves (game_id, move_number, player, move_timestamp, fen_before, fen_after, legal_moves,
			move_san, move_uci, is_legal, prompt_text, raw_response, parsed_move, parsing_success,
			parsing_attempts, thinking_time_ms, api_call_time_ms, parsing_time_ms, move_quality_score,
			blunder_flag, error_type, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id`,
		m.GameID, m.MoveNumber, m.Player, m.Timestamp, m.FENBefore, m.FENAfter, legalBuf,
		m.MoveSAN, m.MoveUCI, m.IsLegal, m.PromptText, m.RawResponse, m.ParsedMove, m.ParsingSuccess,
		m.ParsingAttempts, m.ThinkingTimeMS, m.APICallTimeMS, m.ParsingTimeMS, m.MoveQualityScore,
		m.BlunderFlag, m.ErrorType, m.ErrorMessage,
	).Scan(&id)
	return id, err
}

func insertRethink(ctx context.Context, tx pgx.Tx, moveID int64, a domain.RethinkAttempt) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO rethink_attempts (move_id, attempt_number, prompt_text, raw_response, parsed_move, was_legal, attempt_timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		moveID, a.AttemptNumber, a.PromptText, a.RawResponse, a.ParsedMove, a.WasLegal, a.Timestamp,
	)
	return err
}

func scanMoveRow(row pgx.Row) (*domain.Move, int64, error) {
	var m domain.Move
	var id int64
	var legalBuf []byte
	if err := row.Scan(&id, &m.GameID, &m.MoveNumber, &m.Player, &m.Timestamp, &m.FENBefore, &m.FENAfter, &legalBuf,
		&m.MoveSAN, &m.MoveUCI, &m.IsLegal, &m.PromptText, &m.RawResponse, &m.ParsedMove, &m.ParsingSuccess,
		&m.ParsingAttempts, &m.ThinkingTimeMS, &m.APICallTimeMS, &m.ParsingTimeMS, &m.MoveQualityScore,
		&m.BlunderFlag, &m.ErrorType, &m.ErrorMessage); err != nil {
		return nil, 0, err
	}
	if len(legalBuf) > 0 {
		if err := json.Unmarshal(legalBuf, &m.LegalMoves); err != nil {
			return nil, 0, err
		}
	}
	return &m, id, nil
}

const moveColumns = `id, game_id, move_number, player, move_timestamp, fen_before, fen_after, legal_moves,
	move_san, move_uci, is_legal, prompt_text, raw_response, parsed_move, parsing_success,
	parsing_attempts, thinking_time_ms, api_call_time_ms, parsing_time_ms, move_quality_score,
	blunder_flag, error_type, error_message`

func (s *Store) loadRethinks(ctx context.Context, moveID int64) ([]domain.RethinkAttempt, error) {
	pool, err := s.requireConnected("pooled.loadRethinks")
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `
		SELECT attempt_number, prompt_text, raw_response, parsed_move, was_legal, attempt_timestamp
		FROM rethink_attempts WHERE move_id = $1 ORDER BY attempt_number`, moveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RethinkAttempt
	for rows.Next() {
		var a domain.RethinkAttempt
		if err := rows.Scan(&a.AttemptNumber, &a.PromptText, &a.RawResponse, &a.ParsedMove, &a.WasLegal, &a.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetMoves(ctx context.Context, gameID string, limit *int) ([]*domain.Move, error) {
	pool, err := s.requireConnected("pooled.GetMoves")
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sql := fmt.Sprintf(`SELECT %s FROM moves WHERE game_id = $1 ORDER BY move_number, player`, moveColumns)
	args := []any{gameID}
	if limit != nil {
		sql += " LIMIT $2"
		args = append(args, *limit)
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperrors.Backend("pooled.GetMoves", err)
	}
	defer rows.Close()

	var out []*domain.Move
	var ids []int64
	for rows.Next() {
		m, id, err := scanMoveRow(rows)
		if err != nil {
			return nil, apperrors.Backend("pooled.GetMoves", err)
		}
		out = append(out, m)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Backend("pooled.GetMoves", err)
	}
	for i, id := range ids {
		rethinks, err := s.loadRethinks(ctx, id)
		if err != nil {
			return nil, apperrors.Backend("pooled.GetMoves", err)
		}
		out[i].RethinkAttempts = rethinks
	}
	return out, nil
}

func (s *Store) GetMove(ctx context.Context, gameID string, number, player int) (*domain.Move, error) {
	pool, err := s.requireConnected("pooled.GetMove")
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sql := fmt.Sprintf(`SELECT %s FROM moves WHERE game_id=$1 AND move_number=$2 AND player=$3`, moveColumns)
	row := pool.QueryRow(ctx, sql, gameID, number, player)
	m, id, err := scanMoveRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("pooled.GetMove", fmt.Errorf("move (%s, %d, %d) not found", gameID, number, player))
		}
		return nil, apperrors.Backend("pooled.GetMove", err)
	}
	rethinks, err := s.loadRethinks(ctx, id)
	if err != nil {
		return nil, apperrors.Backend("pooled.GetMove", err)
	}
	m.RethinkAttempts = rethinks
	return m, nil
}

// UpdateMove replaces the stored move's mutable fields and atomically
// replaces its rethink-attempt list (delete-then-reinsert, inside one
// transaction).
func (s *Store) UpdateMove(ctx context.Context, m *domain.Move) (bool, error) {
	pool, err := s.requireConnected("pooled.UpdateMove")
	if err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, apperrors.Backend("pooled.UpdateMove", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM moves WHERE game_id=$1 AND move_number=$2 AND player=$3`,
		m.GameID, m.MoveNumber, m.Player).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, apperrors.Backend("pooled.UpdateMove", err)
	}

	legalBuf, err := json.Marshal(m.LegalMoves)
	if err != nil {
		return false, apperrors.Backend("pooled.UpdateMove", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE moves SET fen_before=$1, fen_after=$2, legal_moves=$3, move_san=$4, move_uci=$5, is_legal=$6,
			prompt_text=$7, raw_response=$8, parsed_move=$9, parsing_success=$10, parsing_attempts=$11,
			thinking_time_ms=$12, api_call_time_ms=$13, parsing_time_ms=$14, move_quality_score=$15,
			blunder_flag=$16, error_type=$17, error_message=$18
		WHERE id=$19`,
		m.FENBefore, m.FENAfter, legalBuf, m.MoveSAN, m.MoveUCI, m.IsLegal,
		m.PromptText, m.RawResponse, m.ParsedMove, m.ParsingSuccess, m.ParsingAttempts,
		m.ThinkingTimeMS, m.APICallTimeMS, m.ParsingTimeMS, m.MoveQualityScore,
		m.BlunderFlag, m.ErrorType, m.ErrorMessage, id,
	)
	if err != nil {
		return false, apperrors.Backend("pooled.UpdateMove", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rethink_attempts WHERE move_id = $1`, id); err != nil {
		return false, apperrors.Backend("pooled.UpdateMove", err)
	}
	for _, a := range m.RethinkAttempts {
		if err := insertRethink(ctx, tx, id, a); err != nil {
			return false, apperrors.Backend("pooled.UpdateMove", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperrors.Backend("pooled.UpdateMove", err)
	}
	return true, nil
}

func (s *Store) AppendRethinkAttempt(ctx context.Context, gameID string, number, player int, a *domain.RethinkAttempt) (bool, error) {
	pool, err := s.requireConnected("pooled.AppendRethinkAttempt")
	if err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, apperrors.Backend("pooled.AppendRethinkAttempt", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM moves WHERE game_id=$1 AND move_number=$2 AND player=$3`,
		gameID, number, player).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, apperrors.Backend("pooled.AppendRethinkAttempt", err)
	}

	if err := insertRethink(ctx, tx, id, *a); err != nil {
		return false, apperrors.Backend("pooled.AppendRethinkAttempt", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperrors.Backend("pooled.AppendRethinkAttempt", err)
	}
	return true, nil
}

func (s *Store) CountOrphanedMoves(ctx context.Context) (int, error) {
	pool, err := s.requireConnected("pooled.CountOrphanedMoves")
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM moves m LEFT JOIN games g ON m.game_id = g.game_id WHERE g.game_id IS NULL`,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Backend("pooled.CountOrphanedMoves", err)
	}
	return count, nil
}
