package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/attendly/attendly-backend/pkg/geo"
)

func TestDistanceM(t *testing.T) {
	tests := []struct {
		name      string
		lat1, ln1 float64
		lat2, ln2 float64
		wantM     float64
		toleranceM float64
	}{
		{
			name: "same point",
			lat1: 24.7136, ln1: 46.6753,
			lat2: 24.7136, ln2: 46.6753,
			wantM: 0, toleranceM: 0.001,
		},
		{
			name: "riyadh branch to point 712m north",
			lat1: 24.7136, ln1: 46.6753,
			lat2: 24.7200, ln2: 46.6753,
			wantM: 712, toleranceM: 2,
		},
		{
			name: "one degree of longitude at equator",
			lat1: 0, ln1: 0,
			lat2: 0, ln2: 1,
			wantM: 111195, toleranceM: 100,
		},
		{
			name: "berlin to munich",
			lat1: 52.5200, ln1: 13.4050,
			lat2: 48.1351, ln2: 11.5820,
			wantM: 504000, toleranceM: 2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := geo.DistanceM(tt.lat1, tt.ln1, tt.lat2, tt.ln2)
			assert.InDelta(t, tt.wantM, got, tt.toleranceM)
		})
	}
}

func TestWithinRadius(t *testing.T) {
	// Branch with a 100 m geofence
	branchLat, branchLng := 24.7136, 46.6753

	assert.True(t, geo.WithinRadius(24.7136, 46.6753, branchLat, branchLng, 100))
	assert.True(t, geo.WithinRadius(24.71365, 46.67535, branchLat, branchLng, 100))
	// ~712 m away
	assert.False(t, geo.WithinRadius(24.7200, 46.6753, branchLat, branchLng, 100))
}
