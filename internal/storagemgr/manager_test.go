package storagemgr

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/seshuthota/gamearena-store/internal/backend/embedded"
	"github.com/seshuthota/gamearena-store/internal/domain"
	"github.com/seshuthota/gamearena-store/internal/stats"
	"github.com/seshuthota/gamearena-store/internal/stats/cache"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := embedded.New(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { store.Disconnect(ctx) })

	engine := stats.NewEngine(store, cache.New(100))
	return New(store, engine, zap.NewNop().Sugar())
}

func newTestGame(id, p1, p2 string) *domain.Game {
	return &domain.Game{
		GameID: id,
		Players: map[int]domain.PlayerInfo{
			domain.Black: {PlayerID: p1, ModelName: "m", ModelProvider: "prov", AgentType: "a"},
			domain.White: {PlayerID: p2, ModelName: "m", ModelProvider: "prov", AgentType: "a"},
		},
	}
}

func newTestMove(gameID string, number, player int) *domain.Move {
	return &domain.Move{
		GameID: gameID, MoveNumber: number, Player: player,
		FENBefore: "before", FENAfter: "after", MoveSAN: "e4", MoveUCI: "e2e4",
		IsLegal: true, ParsingSuccess: true,
		PromptText: "p", RawResponse: "r", ParsingAttempts: 1,
	}
}
