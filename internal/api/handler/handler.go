// Package handler provides HTTP handlers for all API endpoints.
// The delivery pipeline lives in internal/dispatch; handlers decode the
// request, run the orchestrator, and translate its outcome to JSON.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offerpulse/offerpulse/internal/api/respond"
	"github.com/offerpulse/offerpulse/internal/cache"
	"github.com/offerpulse/offerpulse/internal/config"
	"github.com/offerpulse/offerpulse/internal/dispatch"
)

// Orchestrator runs one delivery invocation end to end.
type Orchestrator interface {
	Run(ctx context.Context, req dispatch.Request) (dispatch.Response, error)
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool   *pgxpool.Pool
	cache  cache.Cache
	cfg    *config.Config
	orch   Orchestrator
	logger *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(pool *pgxpool.Pool, c cache.Cache, cfg *config.Config, orch Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{
		pool:   pool,
		cache:  c,
		cfg:    cfg,
		orch:   orch,
		logger: logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "OfferPulse Delivery API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n)
	if err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics where the backend exposes them.
// @Summary Cache health check
// @Description Returns cache statistics (active keys, expired keys) for the in-memory backend.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s, ok := h.cache.(interface{ Stats() map[string]int }); ok {
		body["cache"] = s.Stats()
	} else {
		body["cache"] = "external"
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}
