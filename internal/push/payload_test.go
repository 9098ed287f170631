package push

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerpulse/offerpulse/internal/store"
)

func sampleOffer() store.Offer {
	return store.Offer{
		ID:           uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		VenueID:      uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8"),
		Title:        "Half-price tapas",
		Description:  "Until close tonight",
		Capacity:     20,
		ClaimedCount: 5,
		ExpiresAt:    time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC),
	}
}

func TestBuildPayload(t *testing.T) {
	p := BuildPayload(sampleOffer(), "Casa Lupe")

	assert.Equal(t, "Flash offer at Casa Lupe", p.Title)
	assert.Equal(t, "Half-price tapas — Until close tonight (15 left)", p.Body)
	assert.Equal(t, map[string]string{
		"offer_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"venue_id": "6ba7b811-9dad-11d1-80b4-00c04fd430c8",
		"type":     "flash_offer",
	}, p.Data)
	assert.Equal(t, AndroidChannelID, p.AndroidChannelID)
	assert.Equal(t, "default", p.APNSSound)
	require.NoError(t, p.Validate())
}

func TestBuildPayload_Deterministic(t *testing.T) {
	offer := sampleOffer()
	assert.Equal(t, BuildPayload(offer, "Casa Lupe"), BuildPayload(offer, "Casa Lupe"))
}

func TestBuildPayload_NoDescriptionNoCapacity(t *testing.T) {
	offer := sampleOffer()
	offer.Description = ""
	offer.Capacity = 0

	p := BuildPayload(offer, "Casa Lupe")
	assert.Equal(t, "Half-price tapas", p.Body)
}

func TestPayloadValidate(t *testing.T) {
	p := BuildPayload(sampleOffer(), "Casa Lupe")

	bad := p
	bad.Title = ""
	assert.Error(t, bad.Validate())

	bad = p
	bad.Data = map[string]string{}
	assert.Error(t, bad.Validate())
}
