package stats

import (
	"context"
	"errors"
	"time"

	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// fakeBackend is a minimal in-memory backend.Backend used to exercise the
// Engine without a real store. The read paths the Engine calls, plus
// CreateGame and UpsertPlayerStats, are implemented meaningfully; the rest
// return zero values.
type fakeBackend struct {
	games       []*domain.Game
	playerStats map[string]*domain.PlayerStats
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{playerStats: map[string]*domain.PlayerStats{}}
}

func (f *fakeBackend) Connect(ctx context.Context) error    { return nil }
func (f *fakeBackend) Disconnect(ctx context.Context) error { return nil }
func (f *fakeBackend) IsConnected() bool                    { return true }
func (f *fakeBackend) InitSchema(ctx context.Context) error { return nil }

func (f *fakeBackend) CreateGame(ctx context.Context, g *domain.Game) (string, error) {
	f.games = append(f.games, g)
	return g.GameID, nil
}

func (f *fakeBackend) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	for _, g := range f.games {
		if g.GameID == id {
			return g, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeBackend) UpdateGame(ctx context.Context, id string, updates map[string]any) (bool, error) {
	return false, nil
}
func (f *fakeBackend) DeleteGame(ctx context.Context, id string) (bool, error) { return false, nil }

func (f *fakeBackend) AddMove(ctx context.Context, m *domain.Move) (int64, error) { return 0, nil }
func (f *fakeBackend) GetMoves(ctx context.Context, gameID string, limit *int) ([]*domain.Move, error) {
	return nil, nil
}
func (f *fakeBackend) GetMove(ctx context.Context, gameID string, number, player int) (*domain.Move, error) {
	return nil, errors.New("not found")
}
func (f *fakeBackend) UpdateMove(ctx context.Context, m *domain.Move) (bool, error) { return false, nil }
func (f *fakeBackend) AppendRethinkAttempt(ctx context.Context, gameID string, number, player int, a *domain.RethinkAttempt) (bool, error) {
	return false, nil
}

func (f *fakeBackend) UpsertPlayerStats(ctx context.Context, s *domain.PlayerStats) error {
	cp := *s
	f.playerStats[s.PlayerID] = &cp
	return nil
}

func (f *fakeBackend) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	s, ok := f.playerStats[playerID]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (f *fakeBackend) QueryGames(ctx context.Context, filt backend.GameFilter, limit, offset int) ([]*domain.Game, error) {
	var out []*domain.Game
	for _, g := range f.games {
		if filt.PlayerID != nil {
			if _, ok := playerPosition(g, *filt.PlayerID); !ok {
				continue
			}
		}
		if len(filt.Players) > 0 {
			all := true
			for _, pid := range filt.Players {
				if _, ok := playerPosition(g, pid); !ok {
					all = false
					break
				}
			}
			if !all {
				continue
			}
		}
		if filt.StartAfter != nil && g.StartTime.Before(*filt.StartAfter) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeBackend) CountGames(ctx context.Context, filt backend.GameFilter) (int, error) {
	games, err := f.QueryGames(ctx, filt, -1, 0)
	return len(games), err
}

func (f *fakeBackend) DeleteGamesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
func (f *fakeBackend) Stats(ctx context.Context) (backend.BackendStats, error) {
	return backend.BackendStats{}, nil
}
func (f *fakeBackend) CountOrphanedMoves(ctx context.Context) (int, error) { return 0, nil }

var _ backend.Backend = (*fakeBackend)(nil)

func completedGame(id, p1, p2 string, result domain.GameResult, start time.Time, totalMoves int) *domain.Game {
	var winner *int
	switch result {
	case domain.ResultWhiteWins:
		w := domain.White
		winner = &w
	case domain.ResultBlackWins:
		b := domain.Black
		winner = &b
	}
	end := start.Add(10 * time.Minute)
	dur := 600.0
	return &domain.Game{
		GameID:     id,
		StartTime:  start,
		EndTime:    &end,
		TotalMoves: totalMoves,
		Players: map[int]domain.PlayerInfo{
			domain.Black: {PlayerID: p1, ModelName: "m", ModelProvider: "p", AgentType: "a"},
			domain.White: {PlayerID: p2, ModelName: "m", ModelProvider: "p", AgentType: "a"},
		},
		Outcome:             &domain.GameOutcome{Result: result, Winner: winner, Termination: domain.TerminationCheckmate},
		GameDurationSeconds: &dur,
	}
}
