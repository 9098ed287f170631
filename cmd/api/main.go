// Command api is the OfferPulse delivery API server.
//
// Usage:
//
//	offerpulse-api
//	API_PORT=8080 offerpulse-api

// @title OfferPulse Delivery API
// @version 1.0.0
// @description Flash-offer push notification delivery. Resolves a geofenced audience for an active offer, enforces venue and recipient quotas, and dispatches batched notifications through FCM.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name OfferPulse
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/offerpulse/offerpulse/internal/analytics"
	"github.com/offerpulse/offerpulse/internal/api"
	"github.com/offerpulse/offerpulse/internal/audience"
	"github.com/offerpulse/offerpulse/internal/auth"
	"github.com/offerpulse/offerpulse/internal/cache"
	"github.com/offerpulse/offerpulse/internal/config"
	"github.com/offerpulse/offerpulse/internal/db"
	"github.com/offerpulse/offerpulse/internal/dispatch"
	"github.com/offerpulse/offerpulse/internal/maintenance"
	"github.com/offerpulse/offerpulse/internal/push"
	"github.com/offerpulse/offerpulse/internal/ratelimit"
	"github.com/offerpulse/offerpulse/internal/store"

	_ "github.com/offerpulse/offerpulse/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Initialize cache: Redis when configured, in-process otherwise
	var appCache cache.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Redis unreachable, using in-memory cache", "error", err)
			appCache = cache.NewMemory()
		} else {
			defer redisCache.Close()
			appCache = redisCache
			logger.Info("Redis cache connected", "addr", cfg.RedisAddr)
		}
	} else {
		appCache = cache.NewMemory()
		logger.Info("In-memory cache initialized")
	}

	// Firebase app: caller identity verification plus the FCM gateway.
	// Identity verification is mandatory; the server does not start without it.
	var fbOpts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		fbOpts = append(fbOpts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, fbOpts...)
	if err != nil {
		logger.Error("Failed to initialize Firebase app", "error", err)
		os.Exit(1)
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, app)
	if err != nil {
		logger.Error("Failed to initialize identity verification", "error", err)
		os.Exit(1)
	}

	// FCM sender is degradable: without it dry runs still work and real
	// deliveries fail with FIREBASE_INIT_FAILED.
	fcmSender, err := push.NewFCMSender(ctx, app, cfg.FCMRequestsPerMinute, logger)
	if err != nil {
		logger.Error("FCM gateway unavailable, deliveries disabled", "error", err)
	}

	// Analytics: Pub/Sub when a project is configured, log fallback otherwise
	var emitter analytics.Emitter
	if cfg.PubSubProjectID != "" {
		pubsubEmitter, err := analytics.NewPubSub(ctx, cfg.PubSubProjectID, cfg.AnalyticsTopic, cfg.FirebaseCredentialsFile, logger)
		if err != nil {
			logger.Warn("Pub/Sub unavailable, logging analytics events instead", "error", err)
			emitter = analytics.NewLog(logger)
		} else {
			defer pubsubEmitter.Close()
			emitter = pubsubEmitter
			logger.Info("Analytics publisher connected", "topic", cfg.AnalyticsTopic)
		}
	} else {
		emitter = analytics.NewLog(logger)
	}

	// Delivery pipeline
	st := store.New(pool.Pool, appCache, cfg.CacheTTL, logger)
	ledger := ratelimit.New(ratelimit.NewPGStore(pool.Pool), cfg.RecipientDailyCap, logger)
	resolver := audience.NewResolver(pool.Pool, logger)
	tracker := dispatch.NewTracker(st, emitter, logger)

	var orch *dispatch.Orchestrator
	if fcmSender != nil {
		batcher := push.NewBatcher(fcmSender, cfg.MaxBatchSize, cfg.BatchConcurrency, logger)
		orch = dispatch.NewOrchestrator(verifier, st, ledger, resolver, batcher, tracker,
			cfg.MaxBatchSize, cfg.DeliveryBudget, cfg.DeliveryWarnAt, logger)
	} else {
		orch = dispatch.NewOrchestrator(verifier, st, ledger, resolver, nil, tracker,
			cfg.MaxBatchSize, cfg.DeliveryBudget, cfg.DeliveryWarnAt, logger)
	}

	// Start maintenance tickers (counter GC, offer expiry)
	go maintenance.Start(ctx, ledger, st, maintenance.Config{
		CounterGCInterval:   cfg.CounterGCInterval,
		OfferExpiryInterval: cfg.OfferExpiryInterval,
	}, logger)

	// Create router
	router := api.NewRouter(pool.Pool, appCache, cfg, orch, logger)

	// Create HTTP server. WriteTimeout must exceed the delivery budget so a
	// slow delivery reports its outcome instead of a truncated response.
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.DeliveryBudget + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting OfferPulse Delivery API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
