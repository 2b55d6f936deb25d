package telemetry

import (
	"context"
	"math"
	"sync"
	"time"
)

// Synthetic is an in-process feed that moves two labeled markers back and forth
// along one axis. It is used for dry runs without a capture server and as a
// test double: every command is recorded.
type Synthetic struct {
	labels []string
	axis   int
	min    float32
	max    float32
	period time.Duration
	rate   time.Duration

	mu        sync.Mutex
	connected bool
	streaming bool
	capturing bool
	closed    bool
	frame     uint32
	started   time.Time
	events    []Tag
}

// SyntheticOption configures a Synthetic feed.
type SyntheticOption func(*Synthetic)

// WithFrameRate sets how often Receive yields a frame.
func WithFrameRate(hz int) SyntheticOption {
	return func(s *Synthetic) {
		if hz > 0 {
			s.rate = time.Second / time.Duration(hz)
		}
	}
}

// WithMotion sets the axis, range and sweep period of the generated motion.
func WithMotion(axis int, min, max float32, period time.Duration) SyntheticOption {
	return func(s *Synthetic) {
		s.axis = axis
		s.min = min
		s.max = max
		if period > 0 {
			s.period = period
		}
	}
}

// NewSynthetic returns a synthetic feed exposing the given marker labels.
func NewSynthetic(labels []string, opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		labels: append([]string(nil), labels...),
		axis:   1,
		min:    -250,
		max:    900,
		period: 8 * time.Second,
		rate:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect implements Feed.
func (s *Synthetic) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.connected = true
	s.started = time.Now()
	return nil
}

// Version implements Feed.
func (s *Synthetic) Version(ctx context.Context) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	return "synthetic 1.0", nil
}

// Markers implements Feed.
func (s *Synthetic) Markers(ctx context.Context) ([]Marker, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	markers := make([]Marker, len(s.labels))
	for i, l := range s.labels {
		markers[i] = Marker{Index: i, Label: l}
	}
	return markers, nil
}

// Receive implements Feed. Frames are paced at the configured rate; when
// streaming is off it waits out the timeout like a silent server would.
func (s *Synthetic) Receive(ctx context.Context, timeout time.Duration) (*Frame, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	streaming := s.streaming
	s.mu.Unlock()

	wait := s.rate
	if !streaming {
		wait = timeout
	}
	if wait > timeout {
		wait = timeout
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if !streaming {
		return nil, ErrTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame++
	elapsed := time.Since(s.started)
	return &Frame{
		Number:    s.frame,
		Timestamp: uint64(elapsed.Microseconds()),
		Points:    s.positions(elapsed),
	}, nil
}

// positions places marker i on the sweep with a phase offset per marker.
func (s *Synthetic) positions(elapsed time.Duration) []Point {
	points := make([]Point, len(s.labels))
	mid := (s.min + s.max) / 2
	half := (s.max - s.min) / 2
	for i := range points {
		phase := 2*math.Pi*elapsed.Seconds()/s.period.Seconds() + float64(i)*0.5
		var p Point
		if s.axis >= 0 && s.axis < 3 {
			p[s.axis] = mid + half*float32(math.Sin(phase))
		}
		points[i] = p
	}
	return points
}

// StartStreaming implements Feed.
func (s *Synthetic) StartStreaming(ctx context.Context) error {
	return s.set(&s.streaming, true)
}

// StopStreaming implements Feed.
func (s *Synthetic) StopStreaming(ctx context.Context) error {
	return s.set(&s.streaming, false)
}

// StartCapture implements Feed.
func (s *Synthetic) StartCapture(ctx context.Context) error {
	return s.set(&s.capturing, true)
}

// StopCapture implements Feed.
func (s *Synthetic) StopCapture(ctx context.Context) error {
	return s.set(&s.capturing, false)
}

// SendEvent implements Feed.
func (s *Synthetic) SendEvent(ctx context.Context, tag Tag) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, tag)
	s.mu.Unlock()
	return nil
}

// Close implements Feed.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.connected = false
	s.streaming = false
	return nil
}

// Events returns the tags posted so far.
func (s *Synthetic) Events() []Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tag(nil), s.events...)
}

// Streaming reports whether frame delivery is on.
func (s *Synthetic) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Capturing reports whether a recording is in progress.
func (s *Synthetic) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

func (s *Synthetic) set(field *bool, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.connected {
		return ErrNotConnected
	}
	*field = v
	return nil
}

func (s *Synthetic) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}
