package space

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

const (
	trackMin float32 = -250
	trackMax float32 = 900

	underMin float32 = 232.819
	underMax float32 = 369.577
)

func TestPositionToFrequency(t *testing.T) {
	tests := []struct {
		name string
		pos  float32
		want float32
	}{
		{"track start", trackMin, 200},
		{"track end", trackMax, 400},
		{"midpoint", (trackMin + trackMax) / 2, 300},
		{"overshoot extrapolates", trackMax + 115, 420},
		{"undershoot extrapolates", trackMin - 115, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PositionToFrequency(tt.pos, trackMin, trackMax, 200, 400)
			assert.InDelta(t, tt.want, got, 1e-3)
		})
	}
}

func TestCenterFrequency(t *testing.T) {
	// near unison: geometric mean
	assert.InDelta(t, math32.Sqrt(400*420), CenterFrequency(400, 420), 1e-3)

	// wide ratio: arithmetic mean
	assert.InDelta(t, 300, CenterFrequency(400, 200), 1e-3)
}

func TestSyncFrequencies_EqualPositions(t *testing.T) {
	center := CenterFrequency(underMin, underMax)

	for _, x := range []float32{trackMin, 0, 123.5, trackMax, trackMax + 50} {
		got := SyncFrequencies(x, x, trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
		assert.Equal(t, got[0], got[1], "x=%v", x)
		assert.Equal(t, center, got[0], "x=%v", x)
	}
}

func TestSyncFrequencies_Antisymmetric(t *testing.T) {
	pairs := [][2]float32{
		{0, 10},
		{-100, 40},
		{300, 299.5},
		{-250, 900}, // saturated
		{500, 100},  // saturated
	}

	for _, p := range pairs {
		a := SyncFrequencies(p[0], p[1], trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
		b := SyncFrequencies(p[1], p[0], trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
		assert.Equal(t, a[0], b[1], "pair %v", p)
		assert.Equal(t, a[1], b[0], "pair %v", p)
	}
}

func TestSyncFrequencies_Saturation(t *testing.T) {
	maxDist := (trackMax - trackMin) * DefaultSyncThreshold

	got := SyncFrequencies(maxDist, 0, trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
	assert.Equal(t, [2]float32{underMax, underMin}, got)

	got = SyncFrequencies(0, maxDist+1, trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
	assert.Equal(t, [2]float32{underMin, underMax}, got)
}

func TestSyncFrequencies_HigherPositionHigherFrequency(t *testing.T) {
	got := SyncFrequencies(50, 0, trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
	assert.Greater(t, got[0], got[1])

	got = SyncFrequencies(0, 50, trackMin, trackMax, underMin, underMax, DefaultSyncThreshold)
	assert.Less(t, got[0], got[1])
}

func TestSyncAmplitude(t *testing.T) {
	maxDist := (trackMax - trackMin) * DefaultAmplitudeThreshold

	assert.Equal(t, float32(1), SyncAmplitude(42, 42, trackMin, trackMax, DefaultAmplitudeThreshold))
	assert.Equal(t, float32(0), SyncAmplitude(0, maxDist, trackMin, trackMax, DefaultAmplitudeThreshold))
	assert.Equal(t, float32(0), SyncAmplitude(maxDist*3, 0, trackMin, trackMax, DefaultAmplitudeThreshold))
	assert.InDelta(t, 0.5, SyncAmplitude(0, maxDist/2, trackMin, trackMax, DefaultAmplitudeThreshold), 1e-5)
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5, Distance([3]float32{0, 0, 0}, [3]float32{3, 4, 0}), 1e-6)
	assert.Equal(t, float32(0), Distance([3]float32{1, 2, 3}, [3]float32{1, 2, 3}))
}
