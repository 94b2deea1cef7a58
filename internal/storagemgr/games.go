package storagemgr

import (
	"context"
	"fmt"
	"time"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// CreateGame validates a game and delegates to the backend. Duplicate ids
// surface as apperrors.Duplicate (the backend's own check).
func (m *Manager) CreateGame(ctx context.Context, g *domain.Game) (string, error) {
	if err := g.Validate(); err != nil {
		return "", apperrors.Validation("storagemgr.CreateGame", err)
	}
	id, err := m.backend.CreateGame(ctx, g)
	if err != nil {
		return "", wrapUnlessTyped("storagemgr.CreateGame", err)
	}
	return id, nil
}

// GetGame returns NotFound when absent (the backend's own check).
func (m *Manager) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	g, err := m.backend.GetGame(ctx, id)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.GetGame", err)
	}
	return g, nil
}

// UpdateGame validates the applicable subset of fields present in updates
// before delegating.
func (m *Manager) UpdateGame(ctx context.Context, id string, updates map[string]any) (bool, error) {
	if v, ok := updates["outcome"]; ok {
		o, ok := v.(*domain.GameOutcome)
		if !ok {
			return false, apperrors.Validation("storagemgr.UpdateGame", fmt.Errorf("outcome must be *domain.GameOutcome"))
		}
		if err := o.Validate(); err != nil {
			return false, apperrors.Validation("storagemgr.UpdateGame", err)
		}
	}
	if v, ok := updates["total_moves"]; ok {
		n, ok := v.(int)
		if !ok || n < 0 {
			return false, apperrors.Validation("storagemgr.UpdateGame", fmt.Errorf("total_moves must be a non-negative int"))
		}
	}
	if endV, ok := updates["end_time"]; ok {
		if startV, ok := updates["start_time"]; ok {
			end, okEnd := endV.(time.Time)
			start, okStart := startV.(time.Time)
			if okEnd && okStart && end.Before(start) {
				return false, apperrors.Validation("storagemgr.UpdateGame", fmt.Errorf("end_time cannot precede start_time"))
			}
		}
	}

	ok, err := m.backend.UpdateGame(ctx, id, updates)
	if err != nil {
		return false, wrapUnlessTyped("storagemgr.UpdateGame", err)
	}
	if !ok {
		return false, apperrors.NotFound("storagemgr.UpdateGame", fmt.Errorf("game %q not found", id))
	}
	return true, nil
}

// DeleteGame cascades at the backend.
func (m *Manager) DeleteGame(ctx context.Context, id string) (bool, error) {
	ok, err := m.backend.DeleteGame(ctx, id)
	if err != nil {
		return false, wrapUnlessTyped("storagemgr.DeleteGame", err)
	}
	return ok, nil
}

// QueryGames and CountGames pass the closed filter vocabulary straight
// through to the backend.
func (m *Manager) QueryGames(ctx context.Context, f backend.GameFilter, limit, offset int) ([]*domain.Game, error) {
	games, err := m.backend.QueryGames(ctx, f, limit, offset)
	if err != nil {
		return nil, wrapUnlessTyped("storagemgr.QueryGames", err)
	}
	return games, nil
}

func (m *Manager) CountGames(ctx context.Context, f backend.GameFilter) (int, error) {
	count, err := m.backend.CountGames(ctx, f)
	if err != nil {
		return 0, wrapUnlessTyped("storagemgr.CountGames", err)
	}
	return count, nil
}

// CleanupOldData deletes games started before the cutoff, cascading to their
// moves and rethink attempts at the backend. PlayerStats survive cleanup.
// Returns the number of games removed.
func (m *Manager) CleanupOldData(ctx context.Context, olderThan time.Time) (int, error) {
	n, err := m.backend.DeleteGamesOlderThan(ctx, olderThan)
	if err != nil {
		return 0, wrapUnlessTyped("storagemgr.CleanupOldData", err)
	}
	if n > 0 {
		m.logger.Infow("cleaned up old games", "cutoff", olderThan, "deleted", n)
	}
	return n, nil
}
