package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offerpulse/offerpulse/internal/audience"
	"github.com/offerpulse/offerpulse/internal/auth"
	"github.com/offerpulse/offerpulse/internal/push"
	"github.com/offerpulse/offerpulse/internal/ratelimit"
	"github.com/offerpulse/offerpulse/internal/store"
)

// ---------------------------------------------------------------------------
// Collaborator interfaces
// ---------------------------------------------------------------------------

type quotaLedger interface {
	CheckSenderQuota(ctx context.Context, venueID uuid.UUID, tier string) (ratelimit.Decision, error)
	FilterRecipients(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error)
	RecordSenderSend(ctx context.Context, venueID uuid.UUID) error
	RecordRecipientReceives(ctx context.Context, userIDs []uuid.UUID) error
}

type audienceResolver interface {
	Resolve(ctx context.Context, venueID uuid.UUID, center audience.Point, radiusMeters float64, favoritesOnly bool) ([]audience.Candidate, error)
}

type deliveryStore interface {
	GetOffer(ctx context.Context, id uuid.UUID) (store.Offer, error)
	GetVenue(ctx context.Context, id uuid.UUID) (store.Venue, error)
	ActiveDeviceTokens(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error)
	DeactivateTokens(ctx context.Context, tokens []string) (int64, error)
}

type batchSender interface {
	SendAll(ctx context.Context, tokens []string, payload push.Payload, deadline time.Time) push.Result
}

// ---------------------------------------------------------------------------
// Request / response
// ---------------------------------------------------------------------------

// Request is one delivery invocation.
type Request struct {
	OfferID uuid.UUID
	IDToken string
	DryRun  bool
}

// TokenError is a per-token failure surfaced in the response body.
type TokenError struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Response is the outcome of a successful delivery operation. A duplicate
// invocation of an already-delivered offer is still a success, with zero
// counts and AlreadyDelivered set.
type Response struct {
	Success           bool         `json:"success"`
	TargetedUserCount int          `json:"targeted_user_count"`
	SentCount         int          `json:"sent_count"`
	FailedCount       int          `json:"failed_count"`
	Errors            []TokenError `json:"errors,omitempty"`
	AlreadyDelivered  bool         `json:"already_delivered,omitempty"`
	DryRun            bool         `json:"dry_run,omitempty"`
	BatchPlan         []int        `json:"batch_plan,omitempty"`
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Orchestrator runs the delivery pipeline for one offer: authentication,
// quota check, audience resolution, payload build, batched dispatch, and
// completion bookkeeping. Batcher may be nil when the push gateway failed to
// initialize; dry runs still work in that state, real dispatch does not.
type Orchestrator struct {
	verifier  auth.Verifier
	store     deliveryStore
	ledger    quotaLedger
	resolver  audienceResolver
	batcher   batchSender
	tracker   *Tracker
	batchSize int
	budget    time.Duration
	warnAt    time.Duration
	logger    *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewOrchestrator(
	verifier auth.Verifier,
	deliveryStore deliveryStore,
	ledger quotaLedger,
	resolver audienceResolver,
	batcher batchSender,
	tracker *Tracker,
	batchSize int,
	budget, warnAt time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		verifier:  verifier,
		store:     deliveryStore,
		ledger:    ledger,
		resolver:  resolver,
		batcher:   batcher,
		tracker:   tracker,
		batchSize: batchSize,
		budget:    budget,
		warnAt:    warnAt,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one delivery. Failures are returned as *Error; any success
// path, including the already-delivered short circuit, returns a Response.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	start := o.now()
	deadline := start.Add(o.budget)

	warn := time.AfterFunc(o.warnAt, func() {
		o.logger.Warn("delivery approaching wall-clock budget",
			"offer_id", req.OfferID, "budget", o.budget)
	})
	defer warn.Stop()

	uid, err := o.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		return Response{}, failf(CodeUnauthorized, "caller identity could not be verified")
	}

	offer, err := o.store.GetOffer(ctx, req.OfferID)
	if errors.Is(err, store.ErrOfferNotFound) {
		return Response{}, failf(CodeOfferNotFound, "offer %s not found", req.OfferID)
	}
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "loading offer: %v", err)
	}

	if offer.Delivered {
		o.logger.Info("offer already delivered, skipping", "offer_id", offer.ID)
		return Response{Success: true, AlreadyDelivered: true}, nil
	}
	if offer.Status != store.StatusActive {
		return Response{}, failf(CodeInvalidRequest, "offer is %s, only active offers can be delivered", offer.Status)
	}

	venue, err := o.store.GetVenue(ctx, offer.VenueID)
	if errors.Is(err, store.ErrVenueNotFound) {
		return Response{}, failf(CodeVenueNotFound, "venue %s not found", offer.VenueID)
	}
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "loading venue: %v", err)
	}
	if venue.OwnerUID != uid {
		return Response{}, failf(CodeUnauthorized, "caller does not own venue %s", venue.ID)
	}

	decision, err := o.ledger.CheckSenderQuota(ctx, venue.ID, venue.Tier)
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "checking sender quota: %v", err)
	}
	if !decision.Allowed {
		return Response{}, failf(CodeRateLimitExceeded,
			"daily send limit of %d reached, resets at %s",
			decision.Limit, decision.ResetAt.UTC().Format(time.RFC3339))
	}

	candidates, err := o.resolver.Resolve(ctx, venue.ID,
		audience.Point{Latitude: venue.Latitude, Longitude: venue.Longitude},
		offer.RadiusMeters, offer.FavoritesOnly)
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "resolving audience: %v", err)
	}

	kept, exclusions := audience.ApplyPreferenceFilters(candidates, o.now().UTC(), o.logger)
	eligible, err := o.ledger.FilterRecipients(ctx, userIDs(kept))
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "filtering recipients: %v", err)
	}

	payload := push.BuildPayload(offer, venue.Name)
	if err := payload.Validate(); err != nil {
		return Response{}, failf(CodeInvalidRequest, "building payload: %v", err)
	}

	tokensByUser, err := o.store.ActiveDeviceTokens(ctx, eligible)
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "loading device tokens: %v", err)
	}
	tokens, owner := flattenTokens(eligible, tokensByUser)
	targeted := len(eligible)

	o.logger.Info("delivery targets selected",
		"offer_id", offer.ID,
		"candidates", len(candidates),
		"excluded", exclusions.Total(),
		"targeted", targeted,
		"tokens", len(tokens),
	)

	if req.DryRun {
		return Response{
			Success:           true,
			TargetedUserCount: targeted,
			DryRun:            true,
			BatchPlan:         planBatches(len(tokens), o.batchSize),
		}, nil
	}

	if o.batcher == nil {
		return Response{}, failf(CodeFirebaseInitFailed, "push gateway is not initialized")
	}

	// Claim the delivered flag before dispatching so a concurrent duplicate
	// invocation cannot double-send. The loser observes the short circuit.
	won, err := o.tracker.Claim(ctx, offer.ID)
	if err != nil {
		return Response{}, failf(CodeDatabaseError, "claiming delivery: %v", err)
	}
	if !won {
		o.logger.Info("lost delivery claim to concurrent invocation", "offer_id", offer.ID)
		return Response{Success: true, AlreadyDelivered: true}, nil
	}

	if len(tokens) == 0 {
		o.finalizeEmpty(ctx, offer.ID, venue.ID, targeted)
		return Response{Success: true, TargetedUserCount: targeted}, nil
	}

	result := o.batcher.SendAll(ctx, tokens, payload, deadline)

	if invalid := result.InvalidTokens(); len(invalid) > 0 {
		if _, err := o.store.DeactivateTokens(ctx, invalid); err != nil {
			o.logger.Error("deactivating invalid tokens", "offer_id", offer.ID, "error", err)
		}
	}

	if result.SuccessCount == 0 && result.AllQuotaFailures() {
		o.tracker.Complete(ctx, offer.ID, targeted, result)
		return Response{}, failf(CodeFCMQuotaExceeded, "push gateway quota exhausted, no notifications sent")
	}

	// Rate counters are recorded after dispatch; a recording failure is
	// logged but does not undo a delivery that already happened.
	if err := o.ledger.RecordSenderSend(ctx, venue.ID); err != nil {
		o.logger.Error("recording sender send", "venue_id", venue.ID, "error", err)
	}
	if reached := reachedUsers(result, owner); len(reached) > 0 {
		if err := o.ledger.RecordRecipientReceives(ctx, reached); err != nil {
			o.logger.Error("recording recipient receives", "offer_id", offer.ID, "error", err)
		}
	}

	o.tracker.Complete(ctx, offer.ID, targeted, result)

	return Response{
		Success:           true,
		TargetedUserCount: targeted,
		SentCount:         result.SuccessCount,
		FailedCount:       result.FailureCount,
		Errors:            tokenErrors(result.Failures),
	}, nil
}

// finalizeEmpty finishes a claimed delivery that has nobody to notify. The
// venue still spent a send, and the empty outcome is still reported.
func (o *Orchestrator) finalizeEmpty(ctx context.Context, offerID, venueID uuid.UUID, targeted int) {
	if err := o.ledger.RecordSenderSend(ctx, venueID); err != nil {
		o.logger.Error("recording sender send", "venue_id", venueID, "error", err)
	}
	o.tracker.Complete(ctx, offerID, targeted, push.Result{})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func userIDs(candidates []audience.Candidate) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.UserID)
	}
	return ids
}

// flattenTokens produces the dispatch token list plus a token-to-owner index
// used to attribute per-token outcomes back to recipients.
func flattenTokens(users []uuid.UUID, byUser map[uuid.UUID][]string) ([]string, map[string]uuid.UUID) {
	var tokens []string
	owner := make(map[string]uuid.UUID)
	for _, id := range users {
		for _, t := range byUser[id] {
			tokens = append(tokens, t)
			owner[t] = id
		}
	}
	return tokens, owner
}

// reachedUsers returns the recipients whose tokens did not all fail. Only
// those count against the recipient daily cap. Tokens in batches skipped at
// the budget deadline are indistinguishable from successes here, which errs
// toward counting a receive the user may not have gotten.
func reachedUsers(result push.Result, owner map[string]uuid.UUID) []uuid.UUID {
	failed := make(map[uuid.UUID]int)
	for _, f := range result.Failures {
		if id, ok := owner[f.Token]; ok {
			failed[id]++
		}
	}
	total := make(map[uuid.UUID]int)
	for _, id := range owner {
		total[id]++
	}
	var reached []uuid.UUID
	for id, n := range total {
		if failed[id] < n {
			reached = append(reached, id)
		}
	}
	return reached
}

func tokenErrors(failures []push.TokenResult) []TokenError {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]TokenError, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, TokenError{Token: f.Token, Error: f.Err})
	}
	return errs
}

func planBatches(tokenCount, batchSize int) []int {
	if tokenCount == 0 {
		return nil
	}
	var plan []int
	for n := tokenCount; n > 0; n -= batchSize {
		plan = append(plan, min(n, batchSize))
	}
	return plan
}
