// Package backend defines the capability contract shared by the two
// concrete stores (embedded bbolt, pooled Postgres). The storage manager
// talks only to this interface; it never knows which concrete backend is
// wired in.
package backend

import (
	"context"
	"time"

	"github.com/seshuthota/gamearena-store/internal/domain"
)

// GameFilter is the closed filter vocabulary for QueryGames/CountGames.
// Zero-value fields are "no filter on this dimension". Filters compose
// with logical AND.
type GameFilter struct {
	TournamentID *string
	StartAfter   *time.Time
	EndBefore    *time.Time
	Result       *domain.GameResult
	PlayerID     *string  // games containing this player id at either position
	Players      []string // games containing ALL of these player ids
}

// BackendStats is the maintenance snapshot returned by Stats.
type BackendStats struct {
	BackendType string
	GameCount   int
	MoveCount   int
	PlayerCount int
	SizeBytes   int64
	PoolInfo    map[string]any // nil/empty for the embedded backend
}

// Backend is the uniform contract both concrete stores implement.
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	InitSchema(ctx context.Context) error

	CreateGame(ctx context.Context, g *domain.Game) (string, error)
	GetGame(ctx context.Context, id string) (*domain.Game, error)
	UpdateGame(ctx context.Context, id string, updates map[string]any) (bool, error)
	DeleteGame(ctx context.Context, id string) (bool, error)

	AddMove(ctx context.Context, m *domain.Move) (int64, error)
	GetMoves(ctx context.Context, gameID string, limit *int) ([]*domain.Move, error)
	GetMove(ctx context.Context, gameID string, number, player int) (*domain.Move, error)
	UpdateMove(ctx context.Context, m *domain.Move) (bool, error)
	AppendRethinkAttempt(ctx context.Context, gameID string, number, player int, a *domain.RethinkAttempt) (bool, error)

	UpsertPlayerStats(ctx context.Context, s *domain.PlayerStats) error
	GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error)

	QueryGames(ctx context.Context, f GameFilter, limit, offset int) ([]*domain.Game, error)
	CountGames(ctx context.Context, f GameFilter) (int, error)

	DeleteGamesOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (BackendStats, error)

	// CountOrphanedMoves counts moves whose game_id has no matching game
	// row. Should always be zero given the storage manager's
	// cascade-delete discipline; reported so a bypass of the manager is
	// observable rather than silently assumed absent.
	CountOrphanedMoves(ctx context.Context) (int, error)
}
