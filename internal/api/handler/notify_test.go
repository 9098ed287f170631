package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerpulse/offerpulse/internal/cache"
	"github.com/offerpulse/offerpulse/internal/config"
	"github.com/offerpulse/offerpulse/internal/dispatch"
)

type scriptedOrchestrator struct {
	gotReq dispatch.Request
	resp   dispatch.Response
	err    error
}

func (s *scriptedOrchestrator) Run(_ context.Context, req dispatch.Request) (dispatch.Response, error) {
	s.gotReq = req
	return s.resp, s.err
}

func newTestHandler(orch Orchestrator) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, cache.NewMemory(), &config.Config{}, orch, logger)
}

func postNotify(t *testing.T, h *Handler, body string, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/offer", bytes.NewBufferString(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.NotifyOffer(rec, req)
	return rec
}

func TestNotifyOffer_Success(t *testing.T) {
	offerID := uuid.New()
	orch := &scriptedOrchestrator{resp: dispatch.Response{
		Success:           true,
		TargetedUserCount: 12,
		SentCount:         11,
		FailedCount:       1,
		Errors:            []dispatch.TokenError{{Token: "tok-bad", Error: "invalid_token"}},
	}}
	h := newTestHandler(orch)

	rec := postNotify(t, h, `{"offer_id":"`+offerID.String()+`"}`, "id-token-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, offerID, orch.gotReq.OfferID)
	assert.Equal(t, "id-token-1", orch.gotReq.IDToken)
	assert.False(t, orch.gotReq.DryRun)

	var body dispatch.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 12, body.TargetedUserCount)
	assert.Equal(t, 11, body.SentCount)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "tok-bad", body.Errors[0].Token)
}

func TestNotifyOffer_DryRunFlagPassesThrough(t *testing.T) {
	orch := &scriptedOrchestrator{resp: dispatch.Response{Success: true, DryRun: true}}
	h := newTestHandler(orch)

	rec := postNotify(t, h, `{"offer_id":"`+uuid.NewString()+`","dry_run":true}`, "tok")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, orch.gotReq.DryRun)
}

func TestNotifyOffer_OperationErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		code       dispatch.Code
		wantStatus int
	}{
		{dispatch.CodeUnauthorized, http.StatusUnauthorized},
		{dispatch.CodeOfferNotFound, http.StatusNotFound},
		{dispatch.CodeRateLimitExceeded, http.StatusTooManyRequests},
		{dispatch.CodeFCMQuotaExceeded, http.StatusServiceUnavailable},
		{dispatch.CodeDatabaseError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			orch := &scriptedOrchestrator{err: &dispatch.Error{Code: tt.code, Message: "nope"}}
			h := newTestHandler(orch)

			rec := postNotify(t, h, `{"offer_id":"`+uuid.NewString()+`"}`, "tok")

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.code), body["code"])
		})
	}
}

func TestNotifyOffer_BadRequests(t *testing.T) {
	h := newTestHandler(&scriptedOrchestrator{})

	rec := postNotify(t, h, `{not json`, "tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postNotify(t, h, `{"offer_id":"not-a-uuid"}`, "tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postNotify(t, h, `{"offer_id":"`+uuid.NewString()+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerToken(req))

	req.Header.Set("Authorization", "bearer lower-scheme")
	assert.Equal(t, "lower-scheme", bearerToken(req))
}
