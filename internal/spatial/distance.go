package spatial

import (
	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	EarthRadiusKm     = 6371.0    // Earth's mean radius in kilometers
)

// HaversineDistance calculates the great-circle distance between two points in meters
// using the Haversine formula
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// HaversineKm is HaversineDistance in kilometers
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineDistance(lat1, lon1, lat2, lon2) / 1000.0
}

// Interpolate returns the point at fraction t (0..1) of the great circle from point 1 to point 2
func Interpolate(t, lat1, lon1, lat2, lon2 float64) (float64, float64) {
	p1 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lon1))
	p2 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lon2))

	ll := s2.LatLngFromPoint(s2.Interpolate(t, p1, p2))
	return ll.Lat.Degrees(), ll.Lng.Degrees()
}

// SampleLine returns the two endpoints followed by n evenly spaced interior points
// of the great circle between them. Each sample is a [lat, lon] pair.
func SampleLine(lat1, lon1, lat2, lon2 float64, n int) [][2]float64 {
	if n < 0 {
		n = 0
	}
	samples := make([][2]float64, 0, n+2)
	samples = append(samples, [2]float64{lat1, lon1}, [2]float64{lat2, lon2})

	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n+1)
		lat, lon := Interpolate(t, lat1, lon1, lat2, lon2)
		samples = append(samples, [2]float64{lat, lon})
	}
	return samples
}
