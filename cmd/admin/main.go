// Command admin is the OfferPulse operations CLI.
//
// Usage:
//
//	offerpulse-admin counters gc
//	offerpulse-admin offers expire
//	offerpulse-admin notify --offer 4f8b... --owner <uid>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/offerpulse/offerpulse/internal/analytics"
	"github.com/offerpulse/offerpulse/internal/audience"
	"github.com/offerpulse/offerpulse/internal/auth"
	"github.com/offerpulse/offerpulse/internal/cache"
	"github.com/offerpulse/offerpulse/internal/config"
	"github.com/offerpulse/offerpulse/internal/db"
	"github.com/offerpulse/offerpulse/internal/dispatch"
	"github.com/offerpulse/offerpulse/internal/ratelimit"
	"github.com/offerpulse/offerpulse/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "offerpulse-admin",
		Short: "OfferPulse operations CLI",
	}

	root.AddCommand(countersCmd())
	root.AddCommand(offersCmd())
	root.AddCommand(notifyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// counters command
// --------------------------------------------------------------------------

func countersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Rate-limit counter operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "gc",
		Short: "Delete counters older than the trailing quota window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				ledger := ratelimit.New(ratelimit.NewPGStore(pool.Pool), cfg.RecipientDailyCap, logger)
				start := time.Now()
				n, err := ledger.DeleteExpired(ctx)
				if err != nil {
					return fmt.Errorf("counter gc: %w", err)
				}
				logger.Info("Counter GC finished", "deleted", n, "duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// offers command
// --------------------------------------------------------------------------

func offersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Offer lifecycle operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire active offers past their expiry time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				st := store.New(pool.Pool, cache.NewMemory(), cfg.CacheTTL, logger)
				n, err := st.ExpireOffers(ctx)
				if err != nil {
					return fmt.Errorf("expire offers: %w", err)
				}
				logger.Info("Offers expired", "count", n)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// notify command
// --------------------------------------------------------------------------

// notifyCmd runs the delivery pipeline as a forced dry run: it resolves and
// filters the audience and prints the batch plan without touching FCM, the
// delivered flag, or any rate counter.
func notifyCmd() *cobra.Command {
	var offerID string
	var ownerUID string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Dry-run an offer delivery and print the batch plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(offerID)
			if err != nil {
				return fmt.Errorf("--offer must be a valid UUID")
			}
			return withDeps(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				st := store.New(pool.Pool, cache.NewMemory(), cfg.CacheTTL, logger)
				ledger := ratelimit.New(ratelimit.NewPGStore(pool.Pool), cfg.RecipientDailyCap, logger)
				resolver := audience.NewResolver(pool.Pool, logger)
				tracker := dispatch.NewTracker(st, analytics.NewLog(logger), logger)

				orch := dispatch.NewOrchestrator(auth.Static(ownerUID), st, ledger, resolver, nil, tracker,
					cfg.MaxBatchSize, cfg.DeliveryBudget, cfg.DeliveryWarnAt, logger)

				resp, err := orch.Run(ctx, dispatch.Request{OfferID: id, DryRun: true})
				if err != nil {
					return err
				}
				logger.Info("Dry run complete",
					"offer_id", id,
					"targeted_users", resp.TargetedUserCount,
					"batch_plan", resp.BatchPlan)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&offerID, "offer", "", "offer UUID to plan delivery for")
	cmd.Flags().StringVar(&ownerUID, "owner", "", "venue owner uid to act as")
	_ = cmd.MarkFlagRequired("offer")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// --------------------------------------------------------------------------
// shared setup
// --------------------------------------------------------------------------

func withDeps(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
