// Package telemetry defines the motion-capture feed consumed by the ingestion
// and sequencing tasks, plus a synthetic feed for dry runs and tests.
//
// Concrete transports live in subpackages: qtm speaks the capture server's
// real-time protocol directly, bridge reads JSON frames relayed over a
// websocket.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Marker is a labeled marker known to the capture server.
type Marker struct {
	// Index is the transport-assigned position of the marker in every frame.
	Index int `json:"index"`

	// Label is the stable name given to the marker in the capture project.
	Label string `json:"label"`
}

// Point is a 3D marker position in capture units (millimetres for QTM).
type Point [3]float32

// Frame is one decoded 3D data frame.
type Frame struct {
	// Number is the capture frame counter.
	Number uint32 `json:"frame"`

	// Timestamp is the capture timestamp in microseconds.
	Timestamp uint64 `json:"ts"`

	// Points holds one position per labeled marker, by marker index.
	Points []Point `json:"points"`
}

// Marker3D returns the position of the marker at index. Occluded markers are
// reported as NaN by the capture server and yield ErrMarkerMissing.
func (f *Frame) Marker3D(index int) (Point, error) {
	if f == nil || index < 0 || index >= len(f.Points) {
		return Point{}, fmt.Errorf("marker %d: %w", index, ErrMarkerMissing)
	}
	p := f.Points[index]
	for _, c := range p {
		if math.IsNaN(float64(c)) {
			return Point{}, fmt.Errorf("marker %d occluded: %w", index, ErrMarkerMissing)
		}
	}
	return p, nil
}

// Tag is a single-character event label posted to the capture event log.
type Tag byte

// Event tags.
const (
	TagTrialStart      Tag = 's'
	TagTrialEnd        Tag = 'e'
	TagExperimentStart Tag = 'S'
	TagExperimentEnd   Tag = 'E'

	TagNoSonification   Tag = 'n'
	TagTaskSonification Tag = 't'
	TagSyncSonification Tag = 'y'
)

// String returns the tag character.
func (t Tag) String() string {
	return string(rune(t))
}

// Feed is a motion-capture session.
//
// All calls are synchronous and may fail. Receive blocks for at most timeout;
// every other call is a single request/response exchange.
type Feed interface {
	// Connect opens the session and negotiates the protocol version.
	Connect(ctx context.Context) error

	// Version returns the capture server version string.
	Version(ctx context.Context) (string, error)

	// Markers enumerates the labeled 3D markers.
	Markers(ctx context.Context) ([]Marker, error)

	// Receive returns the next 3D frame or ErrTimeout.
	Receive(ctx context.Context, timeout time.Duration) (*Frame, error)

	// StartStreaming starts 3D frame delivery.
	StartStreaming(ctx context.Context) error

	// StopStreaming stops 3D frame delivery.
	StopStreaming(ctx context.Context) error

	// StartCapture starts a recording on the capture server.
	StartCapture(ctx context.Context) error

	// StopCapture stops the current recording.
	StopCapture(ctx context.Context) error

	// SendEvent posts an event tag to the capture event log.
	SendEvent(ctx context.Context, tag Tag) error

	// Close ends the session. Outstanding calls are abandoned.
	Close() error
}
