package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/time/rate"
)

// FCMSender dispatches multicast batches via Firebase Cloud Messaging.
// Requests are paced with a client-side token bucket so one large delivery
// cannot saturate the project's FCM quota.
type FCMSender struct {
	client  *messaging.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFCMSender creates an FCM sender from an initialized Firebase app.
func NewFCMSender(ctx context.Context, app *firebase.App, requestsPerMinute int, logger *slog.Logger) (*FCMSender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	rps := float64(requestsPerMinute) / 60.0
	return &FCMSender{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// SendBatch issues one multicast call for up to 500 tokens and maps each
// per-token response into the closed error taxonomy.
func (s *FCMSender) SendBatch(ctx context.Context, tokens []string, payload Payload) ([]TokenResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: payload.AndroidChannelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: payload.APNSSound},
			},
		},
	}

	resp, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("multicast send: %w", err)
	}

	results := make([]TokenResult, len(resp.Responses))
	for i, r := range resp.Responses {
		if r.Success {
			results[i] = TokenResult{Token: tokens[i], OK: true}
			continue
		}
		code := classify(r.Error)
		results[i] = TokenResult{
			Token: tokens[i],
			Code:  code,
			Err:   r.Error.Error(),
		}
		if code == ErrServerError || code == ErrUnknown {
			s.logger.Warn("token send failed",
				"token", tokens[i], "code", code, "error", r.Error)
		}
	}
	return results, nil
}

// classify maps an FCM per-token error into the closed taxonomy.
// Gateway quota errors stay distinct from this system's own rate limiting.
func classify(err error) ErrorCode {
	switch {
	case messaging.IsUnregistered(err):
		return ErrInvalidToken
	case messaging.IsQuotaExceeded(err):
		return ErrQuotaExceeded
	case errorutils.IsInternal(err), errorutils.IsUnavailable(err):
		return ErrServerError
	default:
		return ErrUnknown
	}
}
