// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offerpulse/offerpulse/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// haversineMeters is the single distance definition shared by audience
// resolution and the client-side targeting preview. The Go mirror lives in
// internal/audience/geo.go; the two must stay in sync.
const haversineMeters = `6371000 * 2 * asin(sqrt(
			power(sin(radians(u.latitude - $1) / 2), 2) +
			cos(radians($1)) * cos(radians(u.latitude)) *
			power(sin(radians(u.longitude - $2) / 2), 2)))`

// registerPreparedStatements registers all statements the API, delivery, and
// maintenance layers use. Prepared statements eliminate parse overhead on
// every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	candidateColumns := `u.id, ` + haversineMeters + ` AS distance_m,
			u.notifications_enabled, u.quiet_start_min, u.quiet_end_min,
			u.timezone, u.max_distance_m, u.os_permission,
			(SELECT COUNT(*) FROM user_devices d
			   WHERE d.user_id = u.id AND d.is_active) AS active_devices`

	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Offers
		"offer_by_id": `SELECT id, venue_id, title, description, status,
			capacity, claimed_count, delivered, radius_m, favorites_only,
			starts_at, expires_at
			FROM offers WHERE id = $1`,
		"mark_offer_delivered": `UPDATE offers
			SET delivered = true, delivered_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND delivered = false`,
		"expire_offers": `UPDATE offers SET status = 'expired', updated_at = NOW()
			WHERE status = 'active' AND expires_at < NOW()`,

		// Venues
		"venue_by_id": `SELECT id, owner_uid, name, tier, latitude, longitude
			FROM venues WHERE id = $1`,

		// Audience candidates within radius of a point. $1 lat, $2 lng, $3 radius m.
		"audience_in_radius": `SELECT ` + candidateColumns + `
			FROM users u
			WHERE ` + haversineMeters + ` <= $3`,
		"audience_favorites_in_radius": `SELECT ` + candidateColumns + `
			FROM users u
			JOIN user_favorites f ON f.user_id = u.id AND f.venue_id = $4
			WHERE ` + haversineMeters + ` <= $3`,

		// Devices
		"active_device_tokens": `SELECT user_id, token FROM user_devices
			WHERE user_id = ANY($1) AND is_active`,
		"deactivate_device_tokens": `UPDATE user_devices
			SET is_active = false, updated_at = NOW()
			WHERE token = ANY($1) AND is_active`,

		// Rate limit ledger (append-only, trailing 24h window)
		"count_sender_sends": `SELECT COUNT(*), MIN(created_at)
			FROM rate_limit_counters
			WHERE subject_id = $1 AND subject_type = 'venue_send'
			  AND created_at > NOW() - INTERVAL '24 hours'`,
		"count_recipient_receives": `SELECT subject_id, COUNT(*)
			FROM rate_limit_counters
			WHERE subject_id = ANY($1) AND subject_type = 'user_receive'
			  AND created_at > NOW() - INTERVAL '24 hours'
			GROUP BY subject_id`,
		"insert_rate_counter": `INSERT INTO rate_limit_counters (subject_id, subject_type)
			VALUES ($1, $2)`,
		"insert_rate_counters_bulk": `INSERT INTO rate_limit_counters (subject_id, subject_type)
			SELECT unnest($1::uuid[]), $2`,
		"delete_expired_counters": `DELETE FROM rate_limit_counters
			WHERE created_at < NOW() - INTERVAL '24 hours'`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
