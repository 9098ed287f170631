// Package audience resolves the recipient set for a flash offer: a
// geospatial candidate query followed by pure preference filtering.
//
// The SQL haversine expression and DistanceMeters are the same formula, so
// the server and the client-side targeting preview agree on the candidate
// set.
package audience

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Candidate is a user inside the offer radius, before preference filtering.
type Candidate struct {
	UserID               uuid.UUID
	DistanceMeters       float64
	NotificationsEnabled bool
	QuietStartMin        *int // minutes since local midnight; nil = none
	QuietEndMin          *int
	Timezone             string
	MaxDistanceMeters    *float64 // user preference; nil = no limit
	OSPermission         bool
	ActiveDevices        int
}

// Resolver runs the geospatial candidate query.
type Resolver struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(pool *pgxpool.Pool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{pool: pool, logger: logger}
}

// Resolve returns all users within radiusMeters of center, optionally
// restricted to users who favorited the venue.
func (r *Resolver) Resolve(ctx context.Context, venueID uuid.UUID, center Point, radiusMeters float64, favoritesOnly bool) ([]Candidate, error) {
	var rows pgx.Rows
	var err error

	if favoritesOnly {
		rows, err = r.pool.Query(ctx, "audience_favorites_in_radius",
			center.Latitude, center.Longitude, radiusMeters, venueID)
	} else {
		rows, err = r.pool.Query(ctx, "audience_in_radius",
			center.Latitude, center.Longitude, radiusMeters)
	}
	if err != nil {
		return nil, fmt.Errorf("audience query: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(
			&c.UserID, &c.DistanceMeters,
			&c.NotificationsEnabled, &c.QuietStartMin, &c.QuietEndMin,
			&c.Timezone, &c.MaxDistanceMeters, &c.OSPermission,
			&c.ActiveDevices,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	r.logger.Info("audience resolved",
		"venue_id", venueID,
		"radius_m", radiusMeters,
		"favorites_only", favoritesOnly,
		"candidates", len(candidates))
	return candidates, nil
}
