package audience

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Exclusions tallies how many candidates each filter removed. A candidate
// excluded by the first matching filter is not re-counted by later ones, but
// reasons are not exclusive; only the resulting membership is authoritative.
type Exclusions struct {
	Disabled     int
	QuietHours   int
	OverDistance int
	NoDevices    int
	NoPermission int
	Duplicates   int
}

// Total is the number of candidates removed across all filters.
func (e Exclusions) Total() int {
	return e.Disabled + e.QuietHours + e.OverDistance + e.NoDevices + e.NoPermission + e.Duplicates
}

// ApplyPreferenceFilters removes candidates whose preferences or device state
// rule them out. Pure: no I/O, deterministic given its inputs.
//
// Filters, in order: notifications disabled; local time inside quiet hours;
// user max-distance preference smaller than actual distance; no active
// devices; OS-level permission off. Output has no duplicate users; ordering
// is not significant.
func ApplyPreferenceFilters(candidates []Candidate, nowUTC time.Time, logger *slog.Logger) ([]Candidate, Exclusions) {
	if logger == nil {
		logger = slog.Default()
	}

	var excl Exclusions
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	kept := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if _, dup := seen[c.UserID]; dup {
			excl.Duplicates++
			continue
		}
		seen[c.UserID] = struct{}{}

		switch {
		case !c.NotificationsEnabled:
			excl.Disabled++
		case inQuietHours(nowUTC, c.Timezone, c.QuietStartMin, c.QuietEndMin):
			excl.QuietHours++
		case c.MaxDistanceMeters != nil && c.DistanceMeters > *c.MaxDistanceMeters:
			excl.OverDistance++
		case c.ActiveDevices == 0:
			excl.NoDevices++
		case !c.OSPermission:
			excl.NoPermission++
		default:
			kept = append(kept, c)
		}
	}

	logger.Info("preference filters applied",
		"candidates", len(candidates),
		"kept", len(kept),
		"disabled", excl.Disabled,
		"quiet_hours", excl.QuietHours,
		"over_distance", excl.OverDistance,
		"no_devices", excl.NoDevices,
		"no_permission", excl.NoPermission)
	return kept, excl
}

// inQuietHours converts nowUTC to the candidate's local time and tests it
// against the configured quiet interval. The interval may wrap midnight
// (22:00–08:00). An unparseable timezone falls back to UTC rather than
// dropping the user.
func inQuietHours(nowUTC time.Time, timezone string, startMin, endMin *int) bool {
	if startMin == nil || endMin == nil || *startMin == *endMin {
		return false
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	local := nowUTC.In(loc)
	m := local.Hour()*60 + local.Minute()

	start, end := *startMin, *endMin
	if start < end {
		return m >= start && m < end
	}
	// Wraps midnight: quiet from start until end the next day.
	return m >= start || m < end
}
