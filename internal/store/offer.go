package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/offerpulse/offerpulse/internal/cache"
)

// Offer is a time-limited promotion owned by a venue. Targeting parameters
// (radius, favorites restriction) are set by the venue at creation time.
type Offer struct {
	ID            uuid.UUID `json:"id"`
	VenueID       uuid.UUID `json:"venue_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Capacity      int       `json:"capacity"`
	ClaimedCount  int       `json:"claimed_count"`
	Delivered     bool      `json:"delivered"`
	RadiusMeters  float64   `json:"radius_m"`
	FavoritesOnly bool      `json:"favorites_only"`
	StartsAt      time.Time `json:"starts_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Venue owns offers and carries the subscription tier that determines its
// daily send quota. Immutable during a single delivery operation.
type Venue struct {
	ID        uuid.UUID `json:"id"`
	OwnerUID  string    `json:"owner_uid"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// GetOffer loads an offer by id.
func (s *Store) GetOffer(ctx context.Context, id uuid.UUID) (Offer, error) {
	var o Offer
	err := s.readWithRetry(ctx, "offer_by_id", func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx, "offer_by_id", id).Scan(
			&o.ID, &o.VenueID, &o.Title, &o.Description, &o.Status,
			&o.Capacity, &o.ClaimedCount, &o.Delivered,
			&o.RadiusMeters, &o.FavoritesOnly, &o.StartsAt, &o.ExpiresAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOfferNotFound
		}
		if err != nil {
			return fmt.Errorf("get offer: %w", err)
		}
		return nil
	})
	return o, err
}

// GetVenue loads a venue by id, read-through cached since venues are
// immutable during a delivery operation.
func (s *Store) GetVenue(ctx context.Context, id uuid.UUID) (Venue, error) {
	key := "venue:" + id.String()
	var v Venue
	if s.cache != nil {
		if err := cache.GetJSON(ctx, s.cache, key, &v); err == nil {
			return v, nil
		}
	}

	err := s.readWithRetry(ctx, "venue_by_id", func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx, "venue_by_id", id).Scan(
			&v.ID, &v.OwnerUID, &v.Name, &v.Tier, &v.Latitude, &v.Longitude,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVenueNotFound
		}
		if err != nil {
			return fmt.Errorf("get venue: %w", err)
		}
		return nil
	})
	if err != nil {
		return Venue{}, err
	}

	if s.cache != nil {
		if cerr := cache.SetJSON(ctx, s.cache, key, v, s.cacheTTL); cerr != nil {
			s.logger.Warn("venue cache write failed", "venue_id", id, "error", cerr)
		}
	}
	return v, nil
}

// MarkDelivered flips the offer's delivered flag with a single conditional
// update. The affected-row count is the idempotency decision: exactly one
// concurrent caller observes won == true.
func (s *Store) MarkDelivered(ctx context.Context, offerID uuid.UUID) (won bool, err error) {
	tag, err := s.pool.Exec(ctx, "mark_offer_delivered", offerID)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireOffers transitions active offers past their expiry. Returns the
// number of offers expired. Used by the maintenance ticker and admin CLI.
func (s *Store) ExpireOffers(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "expire_offers")
	if err != nil {
		return 0, fmt.Errorf("expire offers: %w", err)
	}
	return tag.RowsAffected(), nil
}
