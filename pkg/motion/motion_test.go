package motion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sonify/pkg/experiment"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

func TestBuffer_FirstCommitSeedsBothSlots(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, &Snapshot{}, b.Latest())

	b.Set(0, Vec3{10, 20, 30})
	b.Set(1, Vec3{-1, -2, -3})
	snap := b.Commit(7)

	assert.Equal(t, uint32(7), snap.Frame)
	assert.Equal(t, snap.Current, snap.Previous)
	assert.Equal(t, [NumSubjects]float32{0, 0}, snap.Step)
	assert.Same(t, snap, b.Latest())
}

func TestBuffer_PreviousIsPriorFrame(t *testing.T) {
	b := NewBuffer()

	frames := []Vec3{{0, 0, 0}, {3, 4, 0}, {3, 4, 12}, {0, 0, 0}}
	for n, p := range frames {
		b.Set(0, p)
		b.Set(1, Vec3{})
		b.Commit(uint32(n))
		if n == 0 {
			continue
		}
		snap := b.Latest()
		assert.Equal(t, frames[n], snap.Current[0], "frame %d", n)
		assert.Equal(t, frames[n-1], snap.Previous[0], "frame %d", n)
	}

	snap := b.Latest()
	assert.Equal(t, uint64(4), snap.Seq)
	assert.InDelta(t, 13, snap.Step[0], 1e-5)
	assert.InDelta(t, 13, snap.MaxStep[0], 1e-5)
	assert.Zero(t, snap.MaxStep[1])
}

func TestBuffer_PublishedSnapshotIsStable(t *testing.T) {
	b := NewBuffer()
	b.Set(0, Vec3{1, 1, 1})
	first := b.Commit(1)

	b.Set(0, Vec3{2, 2, 2})
	b.Commit(2)

	assert.Equal(t, Vec3{1, 1, 1}, first.Current[0], "published snapshots are never rewritten")
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer()
	b.Set(0, Vec3{5, 0, 0})
	b.Commit(1)
	b.Reset()

	b.Set(0, Vec3{100, 0, 0})
	snap := b.Commit(2)
	assert.Equal(t, snap.Current, snap.Previous, "reset seeds again")
	assert.Zero(t, snap.MaxStep[0])
}

func TestBindings_Resolve(t *testing.T) {
	b, err := NewBindings([]string{"CAR_W", "CAR_D"})
	require.NoError(t, err)

	_, err = b.Index(0)
	assert.ErrorIs(t, err, ErrUnbound)

	require.NoError(t, b.Resolve([]telemetry.Marker{
		{Index: 0, Label: "HEAD"},
		{Index: 1, Label: "CAR_D"},
		{Index: 2, Label: "CAR_W"},
	}))
	idx, err := b.Index(0)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	idx, err = b.Index(1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestBindings_PartialInvalidatesAll(t *testing.T) {
	b, err := NewBindings([]string{"CAR_W", "CAR_D"})
	require.NoError(t, err)
	require.NoError(t, b.Resolve([]telemetry.Marker{{Index: 0, Label: "CAR_W"}, {Index: 1, Label: "CAR_D"}}))

	err = b.Resolve([]telemetry.Marker{{Index: 0, Label: "CAR_W"}})
	assert.ErrorIs(t, err, ErrPartialBinding)
	assert.False(t, b.Valid())

	_, err = b.Index(0)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestBindings_Duplicate(t *testing.T) {
	b, err := NewBindings([]string{"A", "A"})
	require.NoError(t, err)
	err = b.Resolve([]telemetry.Marker{{Index: 4, Label: "A"}, {Index: 5, Label: "B"}})
	assert.ErrorIs(t, err, ErrDuplicateBinding)
	assert.False(t, b.Valid())
}

func TestNewBindings_Count(t *testing.T) {
	_, err := NewBindings([]string{"only"})
	assert.ErrorIs(t, err, ErrSubjectCount)
}

// fakeSource serves canned frames and marker lists.
type fakeSource struct {
	markers    []telemetry.Marker
	markersErr error
	frames     []*telemetry.Frame
	receiveErr error

	receives     int
	enumerations int
}

func (f *fakeSource) Markers(ctx context.Context) ([]telemetry.Marker, error) {
	f.enumerations++
	return f.markers, f.markersErr
}

func (f *fakeSource) Receive(ctx context.Context, timeout time.Duration) (*telemetry.Frame, error) {
	f.receives++
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	if len(f.frames) == 0 {
		return nil, telemetry.ErrTimeout
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func activeFlags() *experiment.Flags {
	f := experiment.NewFlags()
	f.SetStreaming(true)
	f.SetSilence(false)
	return f
}

func newTestIngestor(t *testing.T, src *fakeSource, flags *experiment.Flags) (*Ingestor, *Buffer) {
	t.Helper()
	buf := NewBuffer()
	in, err := NewIngestor(src, buf, flags, []string{"CAR_W", "CAR_D"}, 100*time.Millisecond, nil)
	require.NoError(t, err)
	return in, buf
}

func TestIngestor_NoopWhenInactive(t *testing.T) {
	src := &fakeSource{}

	tests := []struct {
		name      string
		streaming bool
		silence   bool
	}{
		{"not streaming", false, false},
		{"muted", true, true},
		{"both off", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := experiment.NewFlags()
			flags.SetStreaming(tt.streaming)
			flags.SetSilence(tt.silence)
			in, _ := newTestIngestor(t, src, flags)

			require.NoError(t, in.Refresh(context.Background()))
		})
	}
	assert.Zero(t, src.receives)
}

func TestIngestor_Refresh(t *testing.T) {
	src := &fakeSource{
		markers: []telemetry.Marker{{Index: 0, Label: "CAR_D"}, {Index: 1, Label: "CAR_W"}},
		frames: []*telemetry.Frame{
			{Number: 10, Points: []telemetry.Point{{1, 2, 3}, {4, 5, 6}}},
		},
	}
	in, buf := newTestIngestor(t, src, activeFlags())
	require.NoError(t, in.Reindex(context.Background()))

	require.NoError(t, in.Refresh(context.Background()))

	snap := buf.Latest()
	assert.Equal(t, uint32(10), snap.Frame)
	assert.Equal(t, Vec3{4, 5, 6}, snap.Current[0], "CAR_W is marker 1")
	assert.Equal(t, Vec3{1, 2, 3}, snap.Current[1], "CAR_D is marker 0")
}

func TestIngestor_DroppedFrameKeepsLastPosition(t *testing.T) {
	src := &fakeSource{
		markers: []telemetry.Marker{{Index: 0, Label: "CAR_W"}, {Index: 1, Label: "CAR_D"}},
		frames: []*telemetry.Frame{
			{Number: 1, Points: []telemetry.Point{{1, 1, 1}, {2, 2, 2}}},
		},
	}
	in, buf := newTestIngestor(t, src, activeFlags())
	require.NoError(t, in.Reindex(context.Background()))
	require.NoError(t, in.Refresh(context.Background()))

	err := in.Refresh(context.Background())
	assert.ErrorIs(t, err, telemetry.ErrTimeout)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, uint32(1), buf.Latest().Frame)
	assert.Equal(t, Vec3{1, 1, 1}, buf.Latest().Current[0])
}

func TestIngestor_PartialResolutionFallsBackToOrigin(t *testing.T) {
	src := &fakeSource{
		// only one of the two subjects is labeled
		markers: []telemetry.Marker{{Index: 0, Label: "CAR_W"}},
		frames: []*telemetry.Frame{
			{Number: 3, Points: []telemetry.Point{{100, 200, 300}, {7, 8, 9}}},
		},
	}
	in, buf := newTestIngestor(t, src, activeFlags())

	err := in.Reindex(context.Background())
	require.ErrorIs(t, err, ErrPartialBinding)
	assert.False(t, in.Bound())

	require.NotPanics(t, func() {
		require.NoError(t, in.Refresh(context.Background()))
	})

	snap := buf.Latest()
	assert.Equal(t, uint32(3), snap.Frame)
	assert.Equal(t, Vec3{}, snap.Current[0])
	assert.Equal(t, Vec3{}, snap.Current[1])
	assert.Equal(t, 2, src.enumerations, "one reindex per refresh")
}

func TestIngestor_ReindexRecoversRelabel(t *testing.T) {
	nan := float32(math.NaN())
	src := &fakeSource{
		markers: []telemetry.Marker{{Index: 0, Label: "CAR_W"}, {Index: 1, Label: "CAR_D"}},
	}
	in, buf := newTestIngestor(t, src, activeFlags())
	require.NoError(t, in.Reindex(context.Background()))

	// the capture server relabels: CAR_W moves to index 2, index 0 goes dark
	src.markers = []telemetry.Marker{{Index: 1, Label: "CAR_D"}, {Index: 2, Label: "CAR_W"}}
	src.frames = []*telemetry.Frame{
		{Number: 5, Points: []telemetry.Point{{nan, nan, nan}, {1, 1, 1}, {9, 9, 9}}},
	}

	require.NoError(t, in.Refresh(context.Background()))
	snap := buf.Latest()
	assert.Equal(t, Vec3{9, 9, 9}, snap.Current[0])
	assert.Equal(t, Vec3{1, 1, 1}, snap.Current[1])
	assert.True(t, in.Bound())
}

func TestIngestor_ReceiveError(t *testing.T) {
	src := &fakeSource{receiveErr: errors.New("connection reset")}
	in, buf := newTestIngestor(t, src, activeFlags())

	err := in.Refresh(context.Background())
	assert.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.Zero(t, buf.Latest().Seq)
}
