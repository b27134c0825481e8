// Package cmd provides shared construction helpers for the service
// binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voyage-hq/voyage/pkg/persistence"
	"github.com/voyage-hq/voyage/pkg/persistence/memory"
	"github.com/voyage-hq/voyage/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// The in-memory backend exists for local development; production runs on
// PostgreSQL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize PostgreSQL persistence", "error", err)
			panic(err)
		}

		return p
	default:
		logger.WarnContext(ctx, "Using in-memory persistence, data will not survive restarts")

		return memory.NewPersistence()
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
