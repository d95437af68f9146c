// Package radius estimates the size of an occulting object from transit depth.
package radius

import "math"

// SolarRadiusKM is the nominal solar radius in kilometres.
const SolarRadiusKM = 695_700.0

// EstimateKM returns the radius of a body whose circular transit across a star
// of stellarRadiusSolar produces the given fractional depth. Depth approximates
// (object radius / star radius)^2. It returns nil when either input is missing,
// non-finite, or depth is not positive.
func EstimateKM(depth, stellarRadiusSolar *float64) *float64 {
	if depth == nil || stellarRadiusSolar == nil {
		return nil
	}
	d, r := *depth, *stellarRadiusSolar
	if !finite(d) || !finite(r) || d <= 0 {
		return nil
	}
	km := SolarRadiusKM * r * math.Sqrt(d)
	return &km
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
