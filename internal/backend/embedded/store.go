// Package embedded implements the Backend contract on top of a single
// bbolt file: one writer at a time, MVCC snapshot reads, buckets keyed by
// entity, values JSON-encoded. Used for development, tests, and analysis
// tooling; the pooled Postgres backend serves production.
package embedded

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/domain"
)

var (
	bucketGames            = []byte("games")
	bucketMoves            = []byte("moves")             // key: 8-byte big-endian autoincrement id
	bucketMovesByGame      = []byte("moves_by_game")     // key: gameID|moveNumber|player -> move id
	bucketPlayerStats      = []byte("player_stats")
	bucketSchemaMigrations = []byte("schema_migrations") // key: 8-byte big-endian version
)

var allBuckets = [][]byte{
	bucketGames, bucketMoves, bucketMovesByGame, bucketPlayerStats, bucketSchemaMigrations,
}

// Store is the embedded, single-file Backend implementation.
type Store struct {
	path string
	db   *bbolt.DB
	// mu additionally serializes writers on top of bbolt's own single-writer
	// guarantee and guards the db handle across Connect/Disconnect.
	mu sync.Mutex
}

// New returns an unconnected embedded backend backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return apperrors.Backend("embedded.Connect", err)
	}
	s.db = db
	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return apperrors.Backend("embedded.Disconnect", err)
	}
	return nil
}

func (s *Store) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *Store) requireConnected(op string) (*bbolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, apperrors.New(apperrors.KindBackend, op, fmt.Errorf("not connected"))
	}
	return s.db, nil
}

// InitSchema creates every bucket and applies pending migrations. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	db, err := s.requireConnected("embedded.InitSchema")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return apperrors.Backend("embedded.InitSchema", err)
	}

	applied, err := s.appliedVersionsLocked(db)
	if err != nil {
		return apperrors.Backend("embedded.InitSchema", err)
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.Update(func(tx *bbolt.Tx) error {
			if m.UpFunc != nil {
				if err := m.UpFunc(tx); err != nil {
					return err
				}
			}
			mb := tx.Bucket(bucketSchemaMigrations)
			rec := migrationRecord{Name: m.Name, AppliedAt: time.Now().Unix()}
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			return mb.Put(versionKey(m.Version), buf)
		}); err != nil {
			return apperrors.Backend(fmt.Sprintf("embedded.InitSchema migration %d", m.Version), err)
		}
	}
	return nil
}

type migrationRecord struct {
	Name      string `json:"name"`
	AppliedAt int64  `json:"applied_at"`
}

func (s *Store) appliedVersionsLocked(db *bbolt.DB) (map[int]bool, error) {
	applied := map[int]bool{}
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSchemaMigrations)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			applied[int(binary.BigEndian.Uint64(k))] = true
			return nil
		})
	})
	return applied, err
}

func versionKey(v int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func moveIDKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func moveIndexKey(gameID string, number, player int) []byte {
	return []byte(fmt.Sprintf("%s|%010d|%d", gameID, number, player))
}

// storedGame is the JSON-on-disk shape for a game: the domain.Game plus a
// deterministic player-position ordering (maps don't round-trip ordering,
// but position is the map key so this is purely cosmetic JSON shape).
type storedGame struct {
	GameID              string                    `json:"game_id"`
	TournamentID        *string                   `json:"tournament_id,omitempty"`
	StartTime           time.Time                 `json:"start_time"`
	EndTime             *time.Time                `json:"end_time,omitempty"`
	Players             map[int]domain.PlayerInfo `json:"players"`
	InitialFEN          string                    `json:"initial_fen"`
	FinalFEN            *string                   `json:"final_fen,omitempty"`
	Outcome             *domain.GameOutcome       `json:"outcome,omitempty"`
	TotalMoves          int                       `json:"total_moves"`
	GameDurationSeconds *float64                  `json:"game_duration_seconds,omitempty"`
	Metadata            map[string]any            `json:"metadata,omitempty"`
}

func toStored(g *domain.Game) storedGame {
	return storedGame{
		GameID:              g.GameID,
		TournamentID:        g.TournamentID,
		StartTime:           g.StartTime,
		EndTime:             g.EndTime,
		Players:             g.Players,
		InitialFEN:          g.InitialFEN,
		FinalFEN:            g.FinalFEN,
		Outcome:             g.Outcome,
		TotalMoves:          g.TotalMoves,
		GameDurationSeconds: g.GameDurationSeconds,
		Metadata:            g.Metadata,
	}
}

func fromStored(sg storedGame) *domain.Game {
	return &domain.Game{
		GameID:              sg.GameID,
		TournamentID:        sg.TournamentID,
		StartTime:           sg.StartTime,
		EndTime:             sg.EndTime,
		Players:             sg.Players,
		InitialFEN:          sg.InitialFEN,
		FinalFEN:            sg.FinalFEN,
		Outcome:             sg.Outcome,
		TotalMoves:          sg.TotalMoves,
		GameDurationSeconds: sg.GameDurationSeconds,
		Metadata:            sg.Metadata,
	}
}

func (s *Store) CreateGame(ctx context.Context, g *domain.Game) (string, error) {
	db, err := s.requireConnected("embedded.CreateGame")
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGames)
		if b.Get([]byte(g.GameID)) != nil {
			return apperrors.Duplicate("embedded.CreateGame", fmt.Errorf("game %q already exists", g.GameID))
		}
		buf, err := json.Marshal(toStored(g))
		if err != nil {
			return err
		}
		return b.Put([]byte(g.GameID), buf)
	})
	if err != nil {
		return "", wrapUnlessTyped("embedded.CreateGame", err)
	}
	return g.GameID, nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	db, err := s.requireConnected("embedded.GetGame")
	if err != nil {
		return nil, err
	}
	var out *domain.Game
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGames)
		v := b.Get([]byte(id))
		if v == nil {
			return apperrors.NotFound("embedded.GetGame", fmt.Errorf("game %q not found", id))
		}
		var sg storedGame
		if err := json.Unmarshal(v, &sg); err != nil {
			return err
		}
		out = fromStored(sg)
		return nil
	})
	if err != nil {
		return nil, wrapUnlessTyped("embedded.GetGame", err)
	}
	return out, nil
}

func (s *Store) UpdateGame(ctx context.Context, id string, updates map[string]any) (bool, error) {
	db, err := s.requireConnected("embedded.UpdateGame")
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGames)
		v := b.Get([]byte(id))
		if v == nil {
			return apperrors.NotFound("embedded.UpdateGame", fmt.Errorf("game %q not found", id))
		}
		var sg storedGame
		if err := json.Unmarshal(v, &sg); err != nil {
			return err
		}
		applyUpdates(&sg, updates)
		found = true
		buf, err := json.Marshal(sg)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), buf)
	})
	if err != nil {
		return false, wrapUnlessTyped("embedded.UpdateGame", err)
	}
	return found, nil
}

func applyUpdates(sg *storedGame, updates map[string]any) {
	if v, ok := updates["end_time"]; ok {
		if t, ok := v.(time.Time); ok {
			sg.EndTime = &t
		}
	}
	if v, ok := updates["outcome"]; ok {
		if o, ok := v.(*domain.GameOutcome); ok {
			sg.Outcome = o
		}
	}
	if v, ok := updates["final_fen"]; ok {
		if fen, ok := v.(string); ok {
			sg.FinalFEN = &fen
		}
	}
	if v, ok := updates["total_moves"]; ok {
		if n, ok := v.(int); ok {
			sg.TotalMoves = n
		}
	}
	if v, ok := updates["game_duration_seconds"]; ok {
		if d, ok := v.(float64); ok {
			sg.GameDurationSeconds = &d
		}
	}
	if v, ok := updates["tournament_id"]; ok {
		if t, ok := v.(string); ok {
			sg.TournamentID = &t
		}
	}
	if v, ok := updates["metadata"]; ok {
		if m, ok := v.(map[string]any); ok {
			sg.Metadata = m
		}
	}
}

func (s *Store) DeleteGame(ctx context.Context, id string) (bool, error) {
	db, err := s.requireConnected("embedded.DeleteGame")
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existed := false
	err = db.Update(func(tx *bbolt.Tx) error {
		gb := tx.Bucket(bucketGames)
		if gb.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		// Cascade: delete every move (and its rethinks, inline in the move
		// blob) whose index key is prefixed by this game id.
		return s.deleteGameCascadeLocked(tx, id)
	})
	if err != nil {
		return false, wrapUnlessTyped("embedded.DeleteGame", err)
	}
	return existed, nil
}

func wrapUnlessTyped(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*apperrors.Error); ok {
		return err
	}
	return apperrors.Backend(op, err)
}
