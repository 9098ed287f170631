package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/offerpulse/offerpulse/internal/api/respond"
	"github.com/offerpulse/offerpulse/internal/dispatch"
)

// notifyRequest is the POST body for a delivery invocation.
type notifyRequest struct {
	OfferID string `json:"offer_id"`
	DryRun  bool   `json:"dry_run"`
}

// NotifyOffer delivers one flash offer to its resolved audience.
// @Summary Deliver an offer's push notifications
// @Description Resolves the audience for an active offer and dispatches push notifications to every eligible device. Idempotent: a second call for a delivered offer succeeds with zero sends.
// @Tags notifications
// @Accept json
// @Produce json
// @Param request body notifyRequest true "Offer to deliver"
// @Success 200 {object} dispatch.Response
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 429 {object} respond.ErrorResponse
// @Router /api/v1/notifications/offer [post]
func (h *Handler) NotifyOffer(w http.ResponseWriter, r *http.Request) {
	var body notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, string(dispatch.CodeInvalidRequest), "request body is not valid JSON")
		return
	}
	offerID, err := uuid.Parse(body.OfferID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, string(dispatch.CodeInvalidRequest), "offer_id is not a valid UUID")
		return
	}

	token := bearerToken(r)
	if token == "" {
		respond.WriteError(w, http.StatusUnauthorized, string(dispatch.CodeUnauthorized), "missing bearer token")
		return
	}

	resp, err := h.orch.Run(r.Context(), dispatch.Request{
		OfferID: offerID,
		IDToken: token,
		DryRun:  body.DryRun,
	})
	if err != nil {
		var opErr *dispatch.Error
		if !errors.As(err, &opErr) {
			h.logger.Error("delivery failed with unclassified error", "offer_id", offerID, "error", err)
			respond.WriteError(w, http.StatusInternalServerError, string(dispatch.CodeInternalError), "internal error")
			return
		}
		respond.WriteError(w, opErr.Code.HTTPStatus(), string(opErr.Code), opErr.Message)
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, resp)
}
