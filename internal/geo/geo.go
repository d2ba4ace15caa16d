// Package geo holds the position-estimation math: great-circle distances,
// RSSI path-loss ranging, and the midpoint/centroid trilateration used to
// place nodes that never report their own GPS fix.
package geo

import "math"

const (
	// earthRadiusM is the mean Earth radius in meters.
	earthRadiusM = 6371000

	// Distance clamp bounds for path-loss ranging. LoRa links beyond 50 km
	// are not credible for this estimator; below 1 m the model breaks down.
	minRangeM = 1
	maxRangeM = 50000

	// UnknownRangeM is the sentinel distance used when no RSSI is
	// available: far, but not disqualifying.
	UnknownRangeM = 10000
)

// Quality tags for estimated positions, ordered by increasing trust.
const (
	QualityUnknown      = "unknown"
	QualityEstimated    = "estimated"
	QualityTriangulated = "triangulated"
	QualityConfirmed    = "confirmed"
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceFromRSSI estimates link distance in meters from an average RSSI
// using the free-space path-loss model:
//
//	distance = 10^((txPower - rssi - 32.44) / 20)
//
// The result is clamped to [1 m, 50 km]. An RSSI of exactly zero means the
// reading was absent, and maps to UnknownRangeM rather than an error; that
// convention loses a legitimately measured 0 dBm, which does not occur on
// real LoRa links.
func DistanceFromRSSI(rssi, txPower float64) float64 {
	if rssi == 0 {
		return UnknownRangeM
	}
	pathLoss := txPower - rssi
	if pathLoss <= 0 {
		return minRangeM
	}
	d := math.Pow(10, (pathLoss-32.44)/20)
	return math.Max(minRangeM, math.Min(d, maxRangeM))
}

// Trilaterate places a point from reference positions. With exactly two
// references it returns their midpoint and QualityEstimated; with three or
// more, the coordinate-wise centroid and QualityTriangulated. Distances to
// the references are deliberately not used as weights. Fewer than two
// references produce no result.
func Trilaterate(refs []Point) (Point, string, bool) {
	switch {
	case len(refs) < 2:
		return Point{}, "", false
	case len(refs) == 2:
		mid := Point{
			Lat: (refs[0].Lat + refs[1].Lat) / 2,
			Lon: (refs[0].Lon + refs[1].Lon) / 2,
		}
		return mid, QualityEstimated, true
	default:
		var c Point
		for _, p := range refs {
			c.Lat += p.Lat
			c.Lon += p.Lon
		}
		c.Lat /= float64(len(refs))
		c.Lon /= float64(len(refs))
		return c, QualityTriangulated, true
	}
}
