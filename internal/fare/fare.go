package fare

import "github.com/example/trip-capture/internal/geo"

// Estimator prices a trip from straight-line distance. Good enough for the
// upfront authorization hold; the final fare is settled elsewhere.
type Estimator struct {
	BaseMinor  int64 // flag-fall, minor currency units
	PerKmMinor int64
}

// Estimate returns the fare in minor units for a trip between the two points.
func (e Estimator) Estimate(origin, dest geo.Coordinate) int64 {
	km := geo.Haversine(origin, dest) / 1000.0
	return e.BaseMinor + int64(km*float64(e.PerKmMinor))
}
