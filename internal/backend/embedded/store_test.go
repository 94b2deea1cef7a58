package embedded

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { s.Disconnect(ctx) })
	return s
}

func sampleGame(id, p1, p2 string, start time.Time) *domain.Game {
	return &domain.Game{
		GameID:    id,
		StartTime: start,
		Players: map[int]domain.PlayerInfo{
			domain.Black: {PlayerID: p1, ModelName: "m", ModelProvider: "prov", AgentType: "a"},
			domain.White: {PlayerID: p2, ModelName: "m", ModelProvider: "prov", AgentType: "a"},
		},
		InitialFEN: "start",
	}
}

func sampleMove(gameID string, number, player int) *domain.Move {
	return &domain.Move{
		GameID: gameID, MoveNumber: number, Player: player,
		FENBefore: "before", FENAfter: "after", MoveSAN: "e4", MoveUCI: "e2e4",
		IsLegal: true, ParsingSuccess: true,
		PromptText: "p", RawResponse: "r", ParsingAttempts: 1,
	}
}

func TestStoreCreateAndGetGame(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := sampleGame("g1", "p1", "p2", time.Now())
	if _, err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("create game: %v", err)
	}

	got, err := s.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if got.GameID != "g1" || got.Players[domain.Black].PlayerID != "p1" {
		t.Fatalf("unexpected round-tripped game: %+v", got)
	}
}

func TestStoreCreateGameDuplicateIDFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := sampleGame("g1", "p1", "p2", time.Now())
	if _, err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("create game: %v", err)
	}
	_, err := s.CreateGame(ctx, sampleGame("g1", "p3", "p4", time.Now()))
	if !apperrors.Is(err, apperrors.KindDuplicate) {
		t.Fatalf("expected duplicate error for a repeated game id, got %v", err)
	}
}

func TestStoreGetGameMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetGame(context.Background(), "nope")
	if !apperrors.Is(err, apperrors.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestStoreUpdateGameAppliesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := sampleGame("g1", "p1", "p2", time.Now())
	if _, err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("create game: %v", err)
	}

	end := time.Now()
	ok, err := s.UpdateGame(ctx, "g1", map[string]any{
		"end_time":    end,
		"total_moves": 5,
		"final_fen":   "final",
		"outcome":     &domain.GameOutcome{Result: domain.ResultDraw},
	})
	if err != nil || !ok {
		t.Fatalf("update game: ok=%v err=%v", ok, err)
	}

	got, err := s.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if got.TotalMoves != 5 || got.FinalFEN == nil || *got.FinalFEN != "final" {
		t.Fatalf("unexpected game after update: %+v", got)
	}
	if !got.IsCompleted() {
		t.Fatal("expected game marked completed after outcome+end_time update")
	}
}

func TestStoreDeleteGameCascadesMoves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := sampleGame("g1", "p1", "p2", time.Now())
	if _, err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := s.AddMove(ctx, sampleMove("g1", 1, domain.White)); err != nil {
		t.Fatalf("add move: %v", err)
	}

	ok, err := s.DeleteGame(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("delete game: ok=%v err=%v", ok, err)
	}

	moves, err := s.GetMoves(ctx, "g1", nil)
	if err != nil {
		t.Fatalf("get moves: %v", err)
	}
	if len(moves) != 0 {
		t.Fatalf("expected moves cascade-deleted with their game, got %d", len(moves))
	}
}

func TestStoreAddMoveAndGetMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, sampleGame("g1", "p1", "p2", time.Now())); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := s.AddMove(ctx, sampleMove("g1", 1, domain.White)); err != nil {
		t.Fatalf("add move: %v", err)
	}

	mv, err := s.GetMove(ctx, "g1", 1, domain.White)
	if err != nil {
		t.Fatalf("get move: %v", err)
	}
	if mv.MoveSAN != "e4" {
		t.Fatalf("unexpected move: %+v", mv)
	}
}

func TestStoreAppendRethinkAttemptOnExistingMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, sampleGame("g1", "p1", "p2", time.Now())); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := s.AddMove(ctx, sampleMove("g1", 1, domain.White)); err != nil {
		t.Fatalf("add move: %v", err)
	}

	ok, err := s.AppendRethinkAttempt(ctx, "g1", 1, domain.White, &domain.RethinkAttempt{
		AttemptNumber: 1, PromptText: "p", RawResponse: "r",
	})
	if err != nil {
		t.Fatalf("append rethink attempt: %v", err)
	}
	if !ok {
		t.Fatal("expected true when the parent move exists")
	}

	mv, err := s.GetMove(ctx, "g1", 1, domain.White)
	if err != nil {
		t.Fatalf("get move: %v", err)
	}
	if len(mv.RethinkAttempts) != 1 {
		t.Fatalf("expected 1 rethink attempt stored, got %d", len(mv.RethinkAttempts))
	}
}

func TestStoreAppendRethinkAttemptMissingMoveReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, sampleGame("g1", "p1", "p2", time.Now())); err != nil {
		t.Fatalf("create game: %v", err)
	}

	ok, err := s.AppendRethinkAttempt(ctx, "g1", 1, domain.White, &domain.RethinkAttempt{
		AttemptNumber: 1, PromptText: "p", RawResponse: "r",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false when the parent move does not exist")
	}
}

func TestStoreUpsertAndGetPlayerStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ps := &domain.PlayerStats{PlayerID: "p1", GamesPlayed: 3, Wins: 2, EloRating: 1230, LastUpdated: time.Now()}
	if err := s.UpsertPlayerStats(ctx, ps); err != nil {
		t.Fatalf("upsert player stats: %v", err)
	}

	got, err := s.GetPlayerStats(ctx, "p1")
	if err != nil {
		t.Fatalf("get player stats: %v", err)
	}
	if got.Wins != 2 || got.EloRating != 1230 {
		t.Fatalf("unexpected round-tripped stats: %+v", got)
	}
}

func TestStoreQueryGamesFiltersByResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()
	g1 := sampleGame("g1", "p1", "p2", base)
	g1.Outcome = &domain.GameOutcome{Result: domain.ResultDraw}
	end := base.Add(time.Minute)
	g1.EndTime = &end
	if _, err := s.CreateGame(ctx, g1); err != nil {
		t.Fatalf("create game 1: %v", err)
	}
	if _, err := s.CreateGame(ctx, sampleGame("g2", "p1", "p2", base.Add(time.Hour))); err != nil {
		t.Fatalf("create game 2: %v", err)
	}

	draw := domain.ResultDraw
	games, err := s.QueryGames(ctx, backend.GameFilter{Result: &draw}, -1, 0)
	if err != nil {
		t.Fatalf("query games: %v", err)
	}
	if len(games) != 1 || games[0].GameID != "g1" {
		t.Fatalf("expected only the drawn game returned, got %+v", games)
	}
}

func TestStoreQueryGamesRespectsLimitAndOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 3; i++ {
		g := sampleGame(string(rune('a'+i)), "p1", "p2", base.Add(time.Duration(i)*time.Hour))
		if _, err := s.CreateGame(ctx, g); err != nil {
			t.Fatalf("create game %d: %v", i, err)
		}
	}

	games, err := s.QueryGames(ctx, backend.GameFilter{}, 1, 1)
	if err != nil {
		t.Fatalf("query games: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("expected limit=1 to cap results, got %d", len(games))
	}
	if games[0].GameID != "b" {
		t.Fatalf("expected offset=1 to skip the earliest game, got %s", games[0].GameID)
	}
}

func TestStoreDeleteGamesOlderThanCutoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	if _, err := s.CreateGame(ctx, sampleGame("old", "p1", "p2", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("create old game: %v", err)
	}
	if _, err := s.CreateGame(ctx, sampleGame("new", "p1", "p2", now)); err != nil {
		t.Fatalf("create new game: %v", err)
	}

	deleted, err := s.DeleteGamesOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete games older than: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 game deleted, got %d", deleted)
	}
	if _, err := s.GetGame(ctx, "old"); !apperrors.Is(err, apperrors.KindNotFound) {
		t.Fatalf("expected the old game gone, got %v", err)
	}
	if _, err := s.GetGame(ctx, "new"); err != nil {
		t.Fatalf("expected the new game to survive, got %v", err)
	}
}

func TestStoreCountOrphanedMovesIsZeroUnderNormalUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, sampleGame("g1", "p1", "p2", time.Now())); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := s.AddMove(ctx, sampleMove("g1", 1, domain.White)); err != nil {
		t.Fatalf("add move: %v", err)
	}

	n, err := s.CountOrphanedMoves(ctx)
	if err != nil {
		t.Fatalf("count orphaned moves: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected zero orphaned moves under the manager's cascade-delete discipline, got %d", n)
	}
}

func TestStoreStatsReportsCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, sampleGame("g1", "p1", "p2", time.Now())); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := s.AddMove(ctx, sampleMove("g1", 1, domain.White)); err != nil {
		t.Fatalf("add move: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.GameCount != 1 || stats.MoveCount != 1 || stats.PlayerCount != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
