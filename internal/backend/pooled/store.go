// Package pooled implements the Backend contract on top of a pooled
// Postgres connection (github.com/jackc/pgx/v5 + pgxpool), the production
// backend. Multi-statement writes run inside transactions acquired from the
// pool; JSONB columns plus GIN indexes back the free-form metadata/config
// maps; player-stats upserts use INSERT ... ON CONFLICT.
package pooled

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
)

// Config configures the pooled backend's connection pool.
type Config struct {
	ConnString     string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// Store is the pooled Postgres Backend implementation.
type Store struct {
	cfg          Config
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// New returns an unconnected pooled backend.
func New(cfg Config) *Store {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.MinConns <= 0 {
		cfg.MinConns = 1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 60 * time.Second
	}
	return &Store{cfg: cfg, queryTimeout: cfg.QueryTimeout}
}

func (s *Store) Connect(ctx context.Context) error {
	if s.pool != nil {
		return nil
	}
	poolCfg, err := pgxpool.ParseConfig(s.cfg.ConnString)
	if err != nil {
		return apperrors.Backend("pooled.Connect", err)
	}
	poolCfg.MinConns = s.cfg.MinConns
	poolCfg.MaxConns = s.cfg.MaxConns

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return apperrors.Backend("pooled.Connect", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return apperrors.Backend("pooled.Connect", err)
	}
	s.pool = pool
	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

func (s *Store) IsConnected() bool {
	return s.pool != nil
}

func (s *Store) requireConnected(op string) (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, apperrors.New(apperrors.KindBackend, op, fmt.Errorf("not connected"))
	}
	return s.pool, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
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
