package push

import (
	"fmt"

	"github.com/offerpulse/offerpulse/internal/store"
)

// BuildPayload constructs the notification body for an offer. Pure and
// deterministic given its inputs: no clock reads, no I/O.
func BuildPayload(offer store.Offer, venueName string) Payload {
	body := offer.Title
	if offer.Description != "" {
		body = fmt.Sprintf("%s — %s", offer.Title, offer.Description)
	}
	if offer.Capacity > 0 {
		remaining := offer.Capacity - offer.ClaimedCount
		if remaining > 0 {
			body = fmt.Sprintf("%s (%d left)", body, remaining)
		}
	}

	return Payload{
		Title: fmt.Sprintf("Flash offer at %s", venueName),
		Body:  body,
		Data: map[string]string{
			"offer_id": offer.ID.String(),
			"venue_id": offer.VenueID.String(),
			"type":     NotificationType,
		},
		AndroidChannelID: AndroidChannelID,
		APNSSound:        "default",
	}
}

// Validate reports whether the payload is well-formed enough to dispatch.
func (p Payload) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("payload title is empty")
	}
	if p.Data["offer_id"] == "" || p.Data["venue_id"] == "" {
		return fmt.Errorf("payload data is missing offer or venue id")
	}
	return nil
}
