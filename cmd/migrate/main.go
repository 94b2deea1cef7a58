// Command migrate opens the configured backend and runs its schema
// initialization. Everything else about wiring a backend happens inside
// whatever process embeds this module as a library.
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/backend/embedded"
	"github.com/seshuthota/gamearena-store/internal/backend/pooled"
	"github.com/seshuthota/gamearena-store/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	var b backend.Backend
	switch cfg.Database.Backend {
	case config.BackendPooled:
		b = pooled.New(pooled.Config{
			ConnString:     cfg.Database.ConnString,
			MaxConns:       int32(cfg.Database.PoolSize),
			ConnectTimeout: cfg.Database.ConnectTimeout,
			QueryTimeout:   cfg.Database.QueryTimeout,
		})
	default:
		b = embedded.New(cfg.Database.ConnString)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout+30*time.Second)
	defer cancel()

	if err := b.Connect(ctx); err != nil {
		sugar.Fatalw("connect failed", "backend", cfg.Database.Backend, "error", err)
	}
	defer b.Disconnect(ctx)

	if err := b.InitSchema(ctx); err != nil {
		sugar.Fatalw("schema init failed", "backend", cfg.Database.Backend, "error", err)
	}

	sugar.Infow("schema initialized", "backend", cfg.Database.Backend)
}
