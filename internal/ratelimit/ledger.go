// Package ratelimit implements the delivery quota ledger: time-windowed
// counters per sender venue and per recipient user.
//
// Counters are append-only rows counted over a trailing 24 hour window.
// A check never mutates state, and recording inserts fresh rows instead of
// incrementing, so concurrent invocations for the same subject cannot race.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offerpulse/offerpulse/internal/config"
)

// SubjectType discriminates what a counter row counts.
type SubjectType string

const (
	SubjectVenueSend   SubjectType = "venue_send"
	SubjectUserReceive SubjectType = "user_receive"
)

// Window is the logical quota window. Rows older than this are expired and
// eligible for garbage collection.
const Window = 24 * time.Hour

// Decision is the outcome of a sender quota check.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int       // config.UnlimitedQuota when the tier has no cap
	ResetAt time.Time // when the oldest in-window send rolls out; zero if none
}

// counterStore is the persistence surface the ledger needs.
type counterStore interface {
	CountSenderSends(ctx context.Context, venueID uuid.UUID) (count int, oldest time.Time, err error)
	CountRecipientReceives(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error)
	Insert(ctx context.Context, subjectID uuid.UUID, subjectType SubjectType) error
	InsertBatch(ctx context.Context, subjectIDs []uuid.UUID, subjectType SubjectType) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Ledger checks and records delivery quotas.
type Ledger struct {
	store        counterStore
	recipientCap int
	logger       *slog.Logger
}

// New creates a Ledger with the given recipient daily cap.
func New(store counterStore, recipientCap int, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, recipientCap: recipientCap, logger: logger}
}

// CheckSenderQuota counts the venue's sends in the trailing window against
// its tier limit. Unlimited tiers are always allowed without counting.
func (l *Ledger) CheckSenderQuota(ctx context.Context, venueID uuid.UUID, tier string) (Decision, error) {
	limit := config.QuotaForTier(tier)
	if limit == config.UnlimitedQuota {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	count, oldest, err := l.store.CountSenderSends(ctx, venueID)
	if err != nil {
		return Decision{}, fmt.Errorf("count sender sends: %w", err)
	}

	d := Decision{Allowed: count < limit, Count: count, Limit: limit}
	if !oldest.IsZero() {
		d.ResetAt = oldest.Add(Window)
	}
	if !d.Allowed {
		l.logger.Warn("sender quota exceeded",
			"subject_id", venueID,
			"subject_type", SubjectVenueSend,
			"count", count,
			"limit", limit,
			"reset_at", d.ResetAt)
	}
	return d, nil
}

// FilterRecipients drops users at or over the recipient daily cap. Over-cap
// users are excluded silently, not failed; each exclusion is logged for
// monitoring.
func (l *Ledger) FilterRecipients(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	counts, err := l.store.CountRecipientReceives(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("count recipient receives: %w", err)
	}

	eligible := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if n := counts[id]; n >= l.recipientCap {
			l.logger.Info("recipient over daily cap, excluded",
				"subject_id", id,
				"subject_type", SubjectUserReceive,
				"count", n,
				"cap", l.recipientCap)
			continue
		}
		eligible = append(eligible, id)
	}
	return eligible, nil
}

// RecordSenderSend appends one venue_send row.
func (l *Ledger) RecordSenderSend(ctx context.Context, venueID uuid.UUID) error {
	if err := l.store.Insert(ctx, venueID, SubjectVenueSend); err != nil {
		return fmt.Errorf("record sender send: %w", err)
	}
	return nil
}

// RecordRecipientReceives appends one user_receive row per user.
func (l *Ledger) RecordRecipientReceives(ctx context.Context, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	if err := l.store.InsertBatch(ctx, userIDs, SubjectUserReceive); err != nil {
		return fmt.Errorf("record recipient receives: %w", err)
	}
	return nil
}

// DeleteExpired garbage-collects counter rows older than the window.
func (l *Ledger) DeleteExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx)
}
