package embedded

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

func (s *Store) UpsertPlayerStats(ctx context.Context, st *domain.PlayerStats) error {
	db, err := s.requireConnected("embedded.UpsertPlayerStats")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPlayerStats)
		buf, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put([]byte(st.PlayerID), buf)
	})
	if err != nil {
		return wrapUnlessTyped("embedded.UpsertPlayerStats", err)
	}
	return nil
}

func (s *Store) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	db, err := s.requireConnected("embedded.GetPlayerStats")
	if err != nil {
		return nil, err
	}
	var out *domain.PlayerStats
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPlayerStats)
		v := b.Get([]byte(playerID))
		if v == nil {
			return apperrors.NotFound("embedded.GetPlayerStats", fmt.Errorf("player %q has no stats", playerID))
		}
		var st domain.PlayerStats
		if err := json.Unmarshal(v, &st); err != nil {
			return err
		}
		out = &st
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped("embedded.GetPlayerStats", err)
	}
	return out, nil
}
