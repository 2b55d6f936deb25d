package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
)

// HeadlessHost renders into memory without an output device.
// By default it paces buffers with a ticker so the experiment runs in real
// time; WithManualPacing leaves pacing to RenderBuffers.
type HeadlessHost struct {
	cfg    Config
	r      Renderer
	logger *slog.Logger
	manual bool

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	out     [][]float32

	// Stats
	buffers atomic.Int64
	frames  atomic.Int64
	peak    atomic.Uint32
}

// HeadlessOption configures a HeadlessHost.
type HeadlessOption func(*HeadlessHost)

// WithManualPacing disables the ticker. Buffers are rendered only by
// RenderBuffers.
func WithManualPacing() HeadlessOption {
	return func(h *HeadlessHost) {
		h.manual = true
	}
}

// NewHeadlessHost creates a new headless host.
func NewHeadlessHost(cfg Config, r Renderer, logger *slog.Logger, opts ...HeadlessOption) *HeadlessHost {
	if logger == nil {
		logger = slog.Default()
	}

	h := &HeadlessHost{
		cfg:    cfg,
		r:      r,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start calls Setup and, unless paced manually, begins rendering.
func (h *HeadlessHost) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.running {
		return nil
	}

	if err := h.r.Setup(float64(h.cfg.SampleRate), h.cfg.Channels); err != nil {
		return fmt.Errorf("renderer setup: %w", err)
	}
	h.out = channelBuffers(h.cfg.Channels, h.cfg.BufferSize())
	h.running = true

	if !h.manual {
		h.stopCh = make(chan struct{})
		h.doneCh = make(chan struct{})
		go h.loop(ctx, h.stopCh, h.doneCh)
	}

	h.logger.Info("headless audio host started",
		"buffer_frames", h.cfg.BufferSize(),
		"manual", h.manual,
	)
	return nil
}

// loop renders one buffer per buffer duration.
func (h *HeadlessHost) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.render()
		}
	}
}

// RenderBuffers renders n buffers immediately.
func (h *HeadlessHost) RenderBuffers(n int) error {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if !running {
		return fmt.Errorf("headless host not running")
	}
	for j := 0; j < n; j++ {
		h.render()
	}
	return nil
}

func (h *HeadlessHost) render() {
	h.r.Render(h.out)
	h.buffers.Add(1)
	h.frames.Add(int64(len(h.out[0])))

	peak := math32.Float32frombits(h.peak.Load())
	for _, ch := range h.out {
		for _, v := range ch {
			if a := math32.Abs(v); a > peak {
				peak = a
			}
		}
	}
	h.peak.Store(math32.Float32bits(peak))
}

// Output returns the most recent buffer. Only meaningful with manual pacing.
func (h *HeadlessHost) Output() [][]float32 {
	return h.out
}

// Peak returns the largest absolute sample rendered so far.
func (h *HeadlessHost) Peak() float32 {
	return math32.Float32frombits(h.peak.Load())
}

// Stop halts rendering and calls Cleanup.
func (h *HeadlessHost) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	stop, done := h.stopCh, h.doneCh
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	h.r.Cleanup()

	h.logger.Info("headless audio host stopped",
		"buffers", h.buffers.Load(),
		"peak", h.Peak(),
	)
	return nil
}

// Config returns the audio configuration.
func (h *HeadlessHost) Config() Config {
	return h.cfg
}

// Name returns "headless".
func (h *HeadlessHost) Name() string {
	return string(BackendHeadless)
}

// Close releases resources.
func (h *HeadlessHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	return h.Stop()
}

// Stats returns host statistics.
func (h *HeadlessHost) Stats() HostStats {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()

	return HostStats{
		BuffersRendered: h.buffers.Load(),
		FramesRendered:  h.frames.Load(),
		Running:         running,
		Backend:         h.Name(),
	}
}

// Ensure HeadlessHost implements Host.
var _ Host = (*HeadlessHost)(nil)
