// Package maintenance runs periodic background tasks as Go tickers.
// All scheduled work is driven from Go since the API is already a
// persistent, long-running service.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// CounterStore deletes rate-limit counters that aged out of every window.
type CounterStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// OfferStore transitions active offers past their expiry time.
type OfferStore interface {
	ExpireOffers(ctx context.Context) (int64, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CounterGCInterval   time.Duration // Rate-limit counter garbage collection
	OfferExpiryInterval time.Duration // Active offers past their expiry time
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CounterGCInterval:   1 * time.Hour,
		OfferExpiryInterval: 5 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, counters CounterStore, offers OfferStore, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"counter_gc", cfg.CounterGCInterval,
		"offer_expiry", cfg.OfferExpiryInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Counter GC: counters older than the trailing window no longer affect
	// any quota decision and can be dropped.
	if cfg.CounterGCInterval > 0 {
		t := time.NewTicker(cfg.CounterGCInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { gcCounters(ctx, counters, logger) })
	}

	// Offer expiry: flip active offers whose expiry time has passed so they
	// stop being deliverable.
	if cfg.OfferExpiryInterval > 0 {
		t := time.NewTicker(cfg.OfferExpiryInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { expireOffers(ctx, offers, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func gcCounters(ctx context.Context, counters CounterStore, logger *slog.Logger) {
	start := time.Now()
	n, err := counters.DeleteExpired(ctx)
	if err != nil {
		logger.Warn("Counter GC failed", "error", err)
		return
	}
	logger.Info("Counter GC complete", "deleted", n, "duration", time.Since(start).Round(time.Millisecond))
}

func expireOffers(ctx context.Context, offers OfferStore, logger *slog.Logger) {
	n, err := offers.ExpireOffers(ctx)
	if err != nil {
		logger.Warn("Offer expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("Expired offers", "count", n)
	}
}
