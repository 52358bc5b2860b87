package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"waterlily/internal/outbox"
	"waterlily/internal/platform/config"
	"waterlily/internal/profile/service"
	"waterlily/internal/profile/store"
)

// recordStore is what the server needs from either store implementation.
type recordStore interface {
	service.Store
	service.StoreTx
	outbox.Source
	CreateAccount(ctx context.Context, email string, firstName, lastName *string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ recordStore = (*store.SQLStore)(nil)
	_ recordStore = (*store.Memory)(nil)
)

func openStore(ctx context.Context, cfg config.Database, log *slog.Logger) (recordStore, error) {
	if cfg.Driver == "memory" {
		log.Warn("using the in-memory record store; data is lost on exit")
		return store.NewMemory(), nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	s, err := store.Open(openCtx, cfg.Driver, cfg.DSN, cfg.MaxOpenConns, cfg.TxTimeout, log)
	if err != nil {
		return nil, err
	}
	if cfg.InitSchema {
		if err := s.EnsureSchema(openCtx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("initialise schema: %w", err)
		}
		log.Info("schema ensured", "driver", cfg.Driver)
	}
	return s, nil
}
