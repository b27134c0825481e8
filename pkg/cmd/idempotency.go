package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/voyage-hq/voyage/pkg/idempotency"
)

// NewIdempotencyStore selects the deduplication backend. An empty Redis URL
// falls back to the process-local store, which is only safe with a single
// worker instance.
func NewIdempotencyStore(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) idempotency.Store {
	if redisURL == "" {
		logger.WarnContext(ctx, "Using in-memory idempotency store, deduplication is per-process only")

		return idempotency.NewMemoryStore(ttl)
	}

	store, err := idempotency.NewRedisStore(redisURL, ttl)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize Redis idempotency store", "error", err)
		panic(err)
	}

	return store
}
