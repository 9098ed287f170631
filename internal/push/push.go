// Package push builds flash-offer notification payloads and dispatches them
// to the gateway in bounded multicast batches.
//
// The batcher makes one best-effort attempt per batch per invocation; it
// never retries a failed send. Per-token failures are classified into a
// closed taxonomy so deactivation and reporting stay decoupled from
// dispatch.
package push

import "time"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// AndroidChannelID is the notification channel flash offers land on.
	AndroidChannelID = "flash_offers"

	// NotificationType tags the data payload for client routing.
	NotificationType = "flash_offer"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Payload is the platform-agnostic message body plus per-platform delivery
// hints. Priority is always high on every platform; flash offers are
// time-sensitive, so best-effort delivery queues are never acceptable.
type Payload struct {
	Title            string
	Body             string
	Data             map[string]string
	AndroidChannelID string
	APNSSound        string
}

// ErrorCode is the closed per-token failure taxonomy.
type ErrorCode string

const (
	ErrInvalidToken  ErrorCode = "invalid_token"
	ErrQuotaExceeded ErrorCode = "quota_exceeded"
	ErrServerError   ErrorCode = "server_error"
	ErrUnknown       ErrorCode = "unknown"
)

// TokenResult is the tagged outcome for one device token in one batch.
type TokenResult struct {
	Token string
	OK    bool
	Code  ErrorCode
	Err   string
}

// Result aggregates all batch outcomes for one SendAll invocation.
type Result struct {
	SuccessCount int
	FailureCount int
	Failures     []TokenResult // failed tokens only
	Batches      int           // gateway calls actually issued
	Skipped      int           // tokens never attempted (budget/cancellation)
	Elapsed      time.Duration
}

// InvalidTokens returns the tokens the gateway reported as permanently
// invalid. The caller deactivates these device identifiers.
func (r Result) InvalidTokens() []string {
	var tokens []string
	for _, f := range r.Failures {
		if f.Code == ErrInvalidToken {
			tokens = append(tokens, f.Token)
		}
	}
	return tokens
}

// AllQuotaFailures reports whether every attempted token failed and at least
// one failure was a gateway quota error.
func (r Result) AllQuotaFailures() bool {
	if r.SuccessCount > 0 || r.FailureCount == 0 {
		return false
	}
	sawQuota := false
	for _, f := range r.Failures {
		if f.Code == ErrQuotaExceeded {
			sawQuota = true
			break
		}
	}
	return sawQuota
}
