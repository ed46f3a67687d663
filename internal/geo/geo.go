package geo

import "math"

// Haversine distance in meters
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Bearing returns the initial bearing from the first fix to the second, in
// degrees clockwise from north, normalized to [0, 360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	y := math.Sin(dLng) * math.Cos(p2)
	x := math.Cos(p1)*math.Sin(p2) - math.Sin(p1)*math.Cos(p2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// MovedAtLeast reports whether the two fixes are at least minMeters apart.
// A non-positive threshold means every movement is significant.
func MovedAtLeast(lat1, lng1, lat2, lng2, minMeters float64) bool {
	if minMeters <= 0 {
		return true
	}
	return Haversine(lat1, lng1, lat2, lng2) >= minMeters
}
