// Package store provides Postgres access for offers, venues, and recipient
// devices. All queries go through prepared statements registered in
// internal/db. Reads get one local retry; writes do not.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offerpulse/offerpulse/internal/cache"
)

var (
	ErrOfferNotFound = errors.New("offer not found")
	ErrVenueNotFound = errors.New("venue not found")
)

// Offer statuses.
const (
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
	StatusFull      = "full"
)

const readRetryDelay = 100 * time.Millisecond

// Store holds the pool and an optional read-through cache for venue lookups.
type Store struct {
	pool     *pgxpool.Pool
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// New creates a Store. appCache may be nil to disable caching.
func New(pool *pgxpool.Pool, appCache cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, cache: appCache, cacheTTL: cacheTTL, logger: logger}
}

// readWithRetry runs fn and retries once on infrastructure errors.
// Not-found sentinels are returned immediately.
func (s *Store) readWithRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || errors.Is(err, ErrOfferNotFound) || errors.Is(err, ErrVenueNotFound) {
		return err
	}
	s.logger.Warn("storage read failed, retrying once", "query", name, "error", err)

	select {
	case <-time.After(readRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn(ctx)
}
