package audience

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

// eligible returns a candidate that passes every filter.
func eligible() Candidate {
	return Candidate{
		UserID:               uuid.New(),
		DistanceMeters:       500,
		NotificationsEnabled: true,
		Timezone:             "UTC",
		OSPermission:         true,
		ActiveDevices:        1,
	}
}

func TestApplyPreferenceFilters(t *testing.T) {
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	disabled := eligible()
	disabled.NotificationsEnabled = false

	tooFar := eligible()
	tooFar.DistanceMeters = 3000
	tooFar.MaxDistanceMeters = floatPtr(1000)

	noDevices := eligible()
	noDevices.ActiveDevices = 0

	noPermission := eligible()
	noPermission.OSPermission = false

	ok := eligible()

	kept, excl := ApplyPreferenceFilters(
		[]Candidate{disabled, tooFar, noDevices, noPermission, ok}, noon, nil)

	assert.Len(t, kept, 1)
	assert.Equal(t, ok.UserID, kept[0].UserID)
	assert.Equal(t, 1, excl.Disabled)
	assert.Equal(t, 1, excl.OverDistance)
	assert.Equal(t, 1, excl.NoDevices)
	assert.Equal(t, 1, excl.NoPermission)
}

func TestApplyPreferenceFilters_Deduplicates(t *testing.T) {
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c := eligible()

	kept, excl := ApplyPreferenceFilters([]Candidate{c, c, c}, noon, nil)
	assert.Len(t, kept, 1)
	assert.Equal(t, 2, excl.Duplicates)
}

func TestApplyPreferenceFilters_MaxDistanceNilMeansNoLimit(t *testing.T) {
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	far := eligible()
	far.DistanceMeters = 50000
	far.MaxDistanceMeters = nil

	kept, _ := ApplyPreferenceFilters([]Candidate{far}, noon, nil)
	assert.Len(t, kept, 1)
}

func TestInQuietHours_RecipientTimezoneNotServerTime(t *testing.T) {
	// Server clock is midday UTC, but in New York (UTC-5) it is 03:00 —
	// inside 22:00–08:00 quiet hours. The recipient's local clock decides.
	serverNow := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	c := eligible()
	c.Timezone = "America/New_York"
	c.QuietStartMin = intPtr(22 * 60)
	c.QuietEndMin = intPtr(8 * 60)

	kept, excl := ApplyPreferenceFilters([]Candidate{c}, serverNow, nil)
	assert.Empty(t, kept)
	assert.Equal(t, 1, excl.QuietHours)

	// Same instant is 17:00 in Helsinki (UTC+2): not quiet.
	c2 := c
	c2.UserID = uuid.New()
	c2.Timezone = "Europe/Helsinki"
	kept, _ = ApplyPreferenceFilters([]Candidate{c2}, serverNow, nil)
	assert.Len(t, kept, 1)
}

func TestInQuietHours(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name     string
		now      time.Time
		startMin *int
		endMin   *int
		want     bool
	}{
		{"no quiet hours configured", at(23, 0), nil, nil, false},
		{"zero-length interval disabled", at(12, 0), intPtr(600), intPtr(600), false},
		{"daytime interval, inside", at(13, 0), intPtr(12 * 60), intPtr(14 * 60), true},
		{"daytime interval, before", at(11, 59), intPtr(12 * 60), intPtr(14 * 60), false},
		{"daytime interval, at end boundary", at(14, 0), intPtr(12 * 60), intPtr(14 * 60), false},
		{"daytime interval, at start boundary", at(12, 0), intPtr(12 * 60), intPtr(14 * 60), true},
		{"wrapping interval, late evening", at(23, 30), intPtr(22 * 60), intPtr(8 * 60), true},
		{"wrapping interval, early morning", at(3, 0), intPtr(22 * 60), intPtr(8 * 60), true},
		{"wrapping interval, just before end", at(7, 59), intPtr(22 * 60), intPtr(8 * 60), true},
		{"wrapping interval, at end", at(8, 0), intPtr(22 * 60), intPtr(8 * 60), false},
		{"wrapping interval, midday", at(12, 0), intPtr(22 * 60), intPtr(8 * 60), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inQuietHours(tt.now, "UTC", tt.startMin, tt.endMin)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInQuietHours_BadTimezoneFallsBackToUTC(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	got := inQuietHours(now, "Not/AZone", intPtr(22*60), intPtr(8*60))
	assert.True(t, got, "unparseable timezone evaluates against UTC")
}
