package dispatch

import (
	"fmt"
	"net/http"
)

// Code is the operation-level failure taxonomy surfaced to callers.
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeOfferNotFound      Code = "OFFER_NOT_FOUND"
	CodeVenueNotFound      Code = "VENUE_NOT_FOUND"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodePushAlreadySent    Code = "PUSH_ALREADY_SENT"
	CodeFirebaseInitFailed Code = "FIREBASE_INIT_FAILED"
	CodeDatabaseError      Code = "DATABASE_ERROR"
	CodeFCMQuotaExceeded   Code = "FCM_QUOTA_EXCEEDED"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// HTTPStatus maps a failure code to its transport status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeOfferNotFound, CodeVenueNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodePushAlreadySent:
		return http.StatusConflict
	case CodeFCMQuotaExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified operation failure with a human-meaningful message.
// Messages never contain credentials or identity tokens.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func failf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
