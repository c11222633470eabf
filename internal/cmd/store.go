package cmd

import (
	"context"
	"fmt"

	"github.com/agritutor/agritutor/internal/config"
	"github.com/agritutor/agritutor/internal/store"
)

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the response cache database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		var err error
		if cfg, err = loadConfig(ctx); err != nil {
			return nil, err
		}
	}
	db, err := store.OpenAndMigrate(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}
