package embedded

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

func (s *Store) AddMove(ctx context.Context, m *domain.Move) (int64, error) {
	db, err := s.requireConnected("embedded.AddMove")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err = db.Update(func(tx *bbolt.Tx) error {
		mib := tx.Bucket(bucketMovesByGame)
		idxKey := moveIndexKey(m.GameID, m.MoveNumber, m.Player)
		if mib.Get(idxKey) != nil {
			return apperrors.Duplicate("embedded.AddMove", fmt.Errorf(
				"move (%s, %d, %d) already exists", m.GameID, m.MoveNumber, m.Player))
		}

		mb := tx.Bucket(bucketMoves)
		seq, err := mb.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		buf, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := mb.Put(moveIDKey(id), buf); err != nil {
			return err
		}
		return mib.Put(idxKey, moveIDKey(id))
	})
	if err != nil {
		return 0, wrapUnlessTyped("embedded.AddMove", err)
	}
	return id, nil
}

func (s *Store) GetMoves(ctx context.Context, gameID string, limit *int) ([]*domain.Move, error) {
	db, err := s.requireConnected("embedded.GetMoves")
	if err != nil {
		return nil, err
	}
	var out []*domain.Move
	err = db.View(func(tx *bbolt.Tx) error {
		moves, err := s.loadGameMovesLocked(tx, gameID)
		if err != nil {
			return err
		}
		sortMoves(moves)
		if limit != nil && *limit >= 0 && *limit < len(moves) {
			moves = moves[:*limit]
		}
		out = moves
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped("embedded.GetMoves", err)
	}
	return out, nil
}

// loadGameMovesLocked loads every move for gameID within an open tx.
func (s *Store) loadGameMovesLocked(tx *bbolt.Tx, gameID string) ([]*domain.Move, error) {
	mib := tx.Bucket(bucketMovesByGame)
	mb := tx.Bucket(bucketMoves)
	prefix := []byte(gameID + "|")
	c := mib.Cursor()
	var moves []*domain.Move
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		raw := mb.Get(v)
		if raw == nil {
			continue
		}
		var m domain.Move
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		moves = append(moves, &m)
	}
	return moves, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func sortMoves(moves []*domain.Move) {
	// Insertion sort: move counts per game are small (hundreds, not
	// millions), and this keeps the ordering stable without pulling in
	// sort.Slice's reflection overhead for a hot read path.
	for i := 1; i < len(moves); i++ {
		j := i
		for j > 0 && moveLess(moves[j], moves[j-1]) {
			moves[j], moves[j-1] = moves[j-1], moves[j]
			j--
		}
	}
}

func moveLess(a, b *domain.Move) bool {
	if a.MoveNumber != b.MoveNumber {
		return a.MoveNumber < b.MoveNumber
	}
	return a.Player < b.Player
}

func (s *Store) GetMove(ctx context.Context, gameID string, number, player int) (*domain.Move, error) {
	db, err := s.requireConnected("embedded.GetMove")
	if err != nil {
		return nil, err
	}
	var out *domain.Move
	err = db.View(func(tx *bbolt.Tx) error {
		mib := tx.Bucket(bucketMovesByGame)
		mb := tx.Bucket(bucketMoves)
		idKey := mib.Get(moveIndexKey(gameID, number, player))
		if idKey == nil {
			return apperrors.NotFound("embedded.GetMove", fmt.Errorf(
				"move (%s, %d, %d) not found", gameID, number, player))
		}
		raw := mb.Get(idKey)
		if raw == nil {
			return apperrors.NotFound("embedded.GetMove", fmt.Errorf(
				"move (%s, %d, %d) not found", gameID, number, player))
		}
		var m domain.Move
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped("embedded.GetMove", err)
	}
	return out, nil
}

func (s *Store) UpdateMove(ctx context.Context, m *domain.Move) (bool, error) {
	db, err := s.requireConnected("embedded.UpdateMove")
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err = db.Update(func(tx *bbolt.Tx) error {
		mib := tx.Bucket(bucketMovesByGame)
		mb := tx.Bucket(bucketMoves)
		idKey := mib.Get(moveIndexKey(m.GameID, m.MoveNumber, m.Player))
		if idKey == nil {
			return nil
		}
		buf, err := json.Marshal(m)
		if err != nil {
			return err
		}
		found = true
		return mb.Put(idKey, buf)
	})
	if err != nil {
		return false, wrapUnlessTyped("embedded.UpdateMove", err)
	}
	return found, nil
}

// AppendRethinkAttempt loads the move, appends the attempt, and writes the
// whole move back atomically; the rethink list is replaced wholesale
// rather than appended row by row.
func (s *Store) AppendRethinkAttempt(ctx context.Context, gameID string, number, player int, a *domain.RethinkAttempt) (bool, error) {
	db, err := s.requireConnected("embedded.AppendRethinkAttempt")
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err = db.Update(func(tx *bbolt.Tx) error {
		mib := tx.Bucket(bucketMovesByGame)
		mb := tx.Bucket(bucketMoves)
		idKey := mib.Get(moveIndexKey(gameID, number, player))
		if idKey == nil {
			return nil
		}
		raw := mb.Get(idKey)
		if raw == nil {
			return nil
		}
		var m domain.Move
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		m.RethinkAttempts = append(m.RethinkAttempts, *a)
		buf, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		found = true
		return mb.Put(idKey, buf)
	})
	if err != nil {
		return false, wrapUnlessTyped("embedded.AppendRethinkAttempt", err)
	}
	return found, nil
}

func (s *Store) CountOrphanedMoves(ctx context.Context) (int, error) {
	db, err := s.requireConnected("embedded.CountOrphanedMoves")
	if err != nil {
		return 0, err
	}
	count := 0
	err = db.View(func(tx *bbolt.Tx) error {
		gb := tx.Bucket(bucketGames)
		mb := tx.Bucket(bucketMoves)
		return mb.ForEach(func(k, v []byte) error {
			var m domain.Move
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if gb.Get([]byte(m.GameID)) == nil {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, wrapUnlessTyped("embedded.CountOrphanedMoves", err)
	}
	return count, nil
}
