package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreatCircleDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lon1, lat1, lon2, lat2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", -43.2, -22.9, -43.2, -22.9, 0, 0},
		{"one degree of latitude", 0, 0, 0, 1, EarthRadiusMeters * math.Pi / 180, 1e-6},
		{"antipodal", 0, 0, 180, 0, math.Pi * EarthRadiusMeters, 1e-3},
		{"poles", 0, 90, 0, -90, math.Pi * EarthRadiusMeters, 1e-3},
		// Rio de Janeiro to Niteroi, checked against an independent haversine
		{"rio to niteroi", -43.1729, -22.9068, -43.1036, -22.8832, 7568.27, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GreatCircleDistance(tt.lon1, tt.lat1, tt.lon2, tt.lat2)
			assert.InDelta(t, tt.want, got, tt.delta)
			back := GreatCircleDistance(tt.lon2, tt.lat2, tt.lon1, tt.lat1)
			assert.InDelta(t, got, back, 1e-9)
		})
	}
}

func TestGreatCircleDistance_NaNPropagates(t *testing.T) {
	nan := math.NaN()
	assert.True(t, math.IsNaN(GreatCircleDistance(nan, 0, 0, 0)))
	assert.True(t, math.IsNaN(GreatCircleDistance(0, nan, 0, 0)))
	assert.True(t, math.IsNaN(GreatCircleDistance(0, 0, nan, nan)))
}

func TestMetersToDegrees(t *testing.T) {
	dLon, dLat := MetersToDegrees(0, EarthRadiusMeters*math.Pi/180)
	assert.InDelta(t, 1.0, dLat, 1e-9)
	assert.InDelta(t, 1.0, dLon, 1e-9)

	dLon, _ = MetersToDegrees(60, 1000)
	_, dLat = MetersToDegrees(60, 1000)
	assert.InDelta(t, 2*dLat, dLon, 1e-9)

	dLon, _ = MetersToDegrees(90, 1000)
	assert.Equal(t, 180.0, dLon)
}
