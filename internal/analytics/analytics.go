// Package analytics emits delivery completion events to the analytics
// collaborator. The Pub/Sub emitter is used in production; the log emitter
// stands in when no project is configured.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Event is published once per completed (non-short-circuited) finalization.
type Event struct {
	OfferID        uuid.UUID `json:"offer_id"`
	RecipientCount int       `json:"recipient_count"`
	FailedCount    int       `json:"failed_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// Emitter publishes delivery events.
type Emitter interface {
	OfferDelivered(ctx context.Context, ev Event) error
}

// --------------------------------------------------------------------------
// Pub/Sub emitter
// --------------------------------------------------------------------------

type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSub creates a Pub/Sub emitter. credentialsFile may be empty to use
// Application Default Credentials.
func NewPubSub(ctx context.Context, projectID, topicID, credentialsFile string, logger *slog.Logger) (*PubSubEmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	return &PubSubEmitter{
		client: client,
		topic:  client.Topic(topicID),
		logger: logger,
	}, nil
}

// OfferDelivered publishes the event and waits for the server ack.
func (e *PubSubEmitter) OfferDelivered(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	res := e.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish delivery event: %w", err)
	}
	return nil
}

// Close flushes the topic and releases the client.
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	return e.client.Close()
}

// --------------------------------------------------------------------------
// Log emitter
// --------------------------------------------------------------------------

// LogEmitter writes events to the structured log. Used when Pub/Sub is not
// configured (local development).
type LogEmitter struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) OfferDelivered(ctx context.Context, ev Event) error {
	e.logger.Info("offer delivered",
		"offer_id", ev.OfferID,
		"recipient_count", ev.RecipientCount,
		"failed_count", ev.FailedCount,
		"timestamp", ev.Timestamp.Format(time.RFC3339))
	return nil
}
