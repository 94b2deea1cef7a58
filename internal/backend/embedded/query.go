package embedded

import (
	"context"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

// matches applies the closed GameFilter vocabulary in memory; the bbolt
// store has no query planner, so listing and filtering is the whole plan.
func matches(g *domain.Game, f backend.GameFilter) bool {
	if f.TournamentID != nil {
		if g.TournamentID == nil || *g.TournamentID != *f.TournamentID {
			return false
		}
	}
	if f.StartAfter != nil && g.StartTime.Before(*f.StartAfter) {
		return false
	}
	if f.EndBefore != nil {
		if g.EndTime == nil || g.EndTime.After(*f.EndBefore) {
			return false
		}
	}
	if f.Result != nil {
		if g.Outcome == nil || g.Outcome.Result != *f.Result {
			return false
		}
	}
	if f.PlayerID != nil {
		if !gameHasPlayer(g, *f.PlayerID) {
			return false
		}
	}
	for _, pid := range f.Players {
		if !gameHasPlayer(g, pid) {
			return false
		}
	}
	return true
}

func gameHasPlayer(g *domain.Game, playerID string) bool {
	for _, p := range g.Players {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (s *Store) allGames(tx *bbolt.Tx) ([]*domain.Game, error) {
	b := tx.Bucket(bucketGames)
	var out []*domain.Game
	err := b.ForEach(func(k, v []byte) error {
		var sg storedGame
		if err := json.Unmarshal(v, &sg); err != nil {
			return err
		}
		out = append(out, fromStored(sg))
		return nil
	})
	return out, err
}

func (s *Store) QueryGames(ctx context.Context, f backend.GameFilter, limit, offset int) ([]*domain.Game, error) {
	db, err := s.requireConnected("embedded.QueryGames")
	if err != nil {
		return nil, err
	}
	var out []*domain.Game
	err = db.View(func(tx *bbolt.Tx) error {
		all, err := s.allGames(tx)
		if err != nil {
			return err
		}
		sortGamesByStart(all)
		for _, g := range all {
			if matches(g, f) {
				out = append(out, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped("embedded.QueryGames", err)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountGames(ctx context.Context, f backend.GameFilter) (int, error) {
	db, err := s.requireConnected("embedded.CountGames")
	if err != nil {
		return 0, err
	}
	count := 0
	err = db.View(func(tx *bbolt.Tx) error {
		all, err := s.allGames(tx)
		if err != nil {
			return err
		}
		for _, g := range all {
			if matches(g, f) {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapUnlessTyped("embedded.CountGames", err)
	}
	return count, nil
}

func sortGamesByStart(games []*domain.Game) {
	for i := 1; i < len(games); i++ {
		j := i
		for j > 0 && games[j].StartTime.Before(games[j-1].StartTime) {
			games[j], games[j-1] = games[j-1], games[j]
			j--
		}
	}
}

func (s *Store) DeleteGamesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	db, err := s.requireConnected("embedded.DeleteGamesOlderThan")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	err = db.Update(func(tx *bbolt.Tx) error {
		all, err := s.allGames(tx)
		if err != nil {
			return err
		}
		for _, g := range all {
			if g.StartTime.Before(cutoff) {
				if err := s.deleteGameCascadeLocked(tx, g.GameID); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapUnlessTyped("embedded.DeleteGamesOlderThan", err)
	}
	return deleted, nil
}

// deleteGameCascadeLocked performs the same cascade as DeleteGame, callable
// from within an already-open write transaction.
func (s *Store) deleteGameCascadeLocked(tx *bbolt.Tx, id string) error {
	gb := tx.Bucket(bucketGames)
	if err := gb.Delete([]byte(id)); err != nil {
		return err
	}
	mib := tx.Bucket(bucketMovesByGame)
	mb := tx.Bucket(bucketMoves)
	prefix := []byte(id + "|")
	c := mib.Cursor()
	var toDelete [][]byte
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), k...))
		if err := mb.Delete(v); err != nil {
			return err
		}
	}
	for _, k := range toDelete {
		if err := mib.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (backend.BackendStats, error) {
	db, err := s.requireConnected("embedded.Stats")
	if err != nil {
		return backend.BackendStats{}, err
	}
	var out backend.BackendStats
	out.BackendType = "embedded"
	err = db.View(func(tx *bbolt.Tx) error {
		out.GameCount = tx.Bucket(bucketGames).Stats().KeyN
		out.MoveCount = tx.Bucket(bucketMoves).Stats().KeyN
		players := map[string]struct{}{}
		all, err := s.allGames(tx)
		if err != nil {
			return err
		}
		for _, g := range all {
			for _, p := range g.Players {
				players[p.PlayerID] = struct{}{}
			}
		}
		out.PlayerCount = len(players)
		out.SizeBytes = tx.Size()
		return nil
	})
	if err != nil {
		return backend.BackendStats{}, wrapUnlessTyped("embedded.Stats", err)
	}
	return out, nil
}
