// Package space maps tracked positions onto sonification parameters.
//
// All functions are pure and allocation-free so they can be called from the
// audio render goroutine once per buffer.
package space

import "github.com/chewxy/math32"

// Default thresholds, expressed as a fraction of the track length.
const (
	DefaultSyncThreshold      float32 = 0.3
	DefaultAmplitudeThreshold float32 = 0.1
)

// unisonRatio is the f1/f2 ratio below which two frequencies are treated as
// near-unison and centered geometrically.
const unisonRatio float32 = 1.1

// PositionToFrequency linearly maps pos on [trackMin, trackMax] onto
// [freqMin, freqMax]. The result is not clamped; positions outside the track
// extrapolate.
func PositionToFrequency(pos, trackMin, trackMax, freqMin, freqMax float32) float32 {
	return freqMin + (pos-trackMin)*(freqMax-freqMin)/(trackMax-trackMin)
}

// CenterFrequency returns the geometric mean of f1 and f2 when f1/f2 < 1.1,
// otherwise the arithmetic mean.
func CenterFrequency(f1, f2 float32) float32 {
	if f1/f2 < unisonRatio {
		return math32.Sqrt(f1 * f2)
	}
	return (f1 + f2) / 2
}

// SyncFrequencies returns two frequencies that deviate symmetrically from the
// center of [freqMin, freqMax] in proportion to x1-x2.
//
// Equal positions give the center frequency twice. When |x1-x2| reaches
// threshold*(trackMax-trackMin) the pair saturates at {freqMax, freqMin},
// ordered by the sign of x1-x2.
func SyncFrequencies(x1, x2, trackMin, trackMax, freqMin, freqMax, threshold float32) [2]float32 {
	center := CenterFrequency(freqMin, freqMax)

	dist := x1 - x2
	maxDist := (trackMax - trackMin) * threshold
	if math32.Abs(dist) >= maxDist {
		if x1 > x2 {
			return [2]float32{freqMax, freqMin}
		}
		return [2]float32{freqMin, freqMax}
	}

	delta := (freqMax - freqMin) * (dist / maxDist / 2)
	return [2]float32{center + delta, center - delta}
}

// SyncAmplitude returns 1 - dist/maxDist for the distance between x1 and x2,
// and exactly 0 once the distance reaches threshold*(trackMax-trackMin).
func SyncAmplitude(x1, x2, trackMin, trackMax, threshold float32) float32 {
	dist := math32.Abs(x1 - x2)
	maxDist := (trackMax - trackMin) * threshold
	if dist >= maxDist {
		return 0
	}
	return 1 - dist/maxDist
}

// Distance returns the Euclidean distance between two 3D points.
func Distance(a, b [3]float32) float32 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math32.Sqrt(dx*dx + dy*dy + dz*dz)
}
