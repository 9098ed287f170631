package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offerpulse/offerpulse/internal/analytics"
	"github.com/offerpulse/offerpulse/internal/push"
)

type deliveredMarker interface {
	MarkDelivered(ctx context.Context, offerID uuid.UUID) (bool, error)
}

// Tracker owns the delivered flag and the post-delivery bookkeeping:
// claiming an offer exactly once, emitting the analytics event, and
// recording per-token failure reasons for offline triage.
type Tracker struct {
	marker  deliveredMarker
	emitter analytics.Emitter
	logger  *slog.Logger
}

func NewTracker(marker deliveredMarker, emitter analytics.Emitter, logger *slog.Logger) *Tracker {
	return &Tracker{marker: marker, emitter: emitter, logger: logger}
}

// Claim flips the offer's delivered flag. Exactly one concurrent caller
// observes won=true; everyone else lost the race and must not dispatch.
func (t *Tracker) Claim(ctx context.Context, offerID uuid.UUID) (won bool, err error) {
	return t.marker.MarkDelivered(ctx, offerID)
}

// Complete records the outcome of a delivery attempt. Analytics emission is
// best effort: a publish failure is logged and never fails the delivery.
func (t *Tracker) Complete(ctx context.Context, offerID uuid.UUID, targeted int, result push.Result) {
	event := analytics.Event{
		OfferID:        offerID,
		RecipientCount: targeted,
		FailedCount:    result.FailureCount,
		Timestamp:      time.Now().UTC(),
	}
	if err := t.emitter.OfferDelivered(ctx, event); err != nil {
		t.logger.Error("analytics emit failed", "offer_id", offerID, "error", err)
	}

	for _, f := range result.Failures {
		t.logger.Warn("send failure",
			"offer_id", offerID,
			"token", f.Token,
			"code", f.Code,
			"error", f.Err,
		)
	}

	t.logger.Info("delivery complete",
		"offer_id", offerID,
		"targeted", targeted,
		"sent", result.SuccessCount,
		"failed", result.FailureCount,
		"batches", result.Batches,
		"skipped_tokens", result.Skipped,
		"elapsed", result.Elapsed,
	)
}
