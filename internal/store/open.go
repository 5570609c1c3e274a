package store

import (
	"context"

	"github.com/hpungsan/sitesmith/internal/config"
)

// Open returns the Postgres store when cfg names a database URL and the
// SQLite store under baseDir otherwise.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (Store, error) {
	if cfg != nil && cfg.DatabaseURL != "" {
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg)
	}
	s, err := OpenSQLite(baseDir)
	if err != nil {
		return nil, err
	}
	s.ConfigurePool(cfg)
	return s, nil
}
