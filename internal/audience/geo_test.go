package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	timesSquare := Point{Latitude: 40.7580, Longitude: -73.9855}
	empireState := Point{Latitude: 40.7484, Longitude: -73.9857}

	// Known distance ~1.07 km.
	d := DistanceMeters(timesSquare, empireState)
	assert.InDelta(t, 1070, d, 30)

	// Symmetric and zero at identity.
	assert.InDelta(t, d, DistanceMeters(empireState, timesSquare), 0.001)
	assert.Zero(t, DistanceMeters(timesSquare, timesSquare))
}

func TestDistanceMeters_CrossHemisphere(t *testing.T) {
	london := Point{Latitude: 51.5074, Longitude: -0.1278}
	sydney := Point{Latitude: -33.8688, Longitude: 151.2093}

	// ~16,990 km great-circle distance.
	d := DistanceMeters(london, sydney)
	assert.InDelta(t, 16_990_000, d, 50_000)
}
