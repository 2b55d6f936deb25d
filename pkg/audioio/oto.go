//go:build !headless

package audioio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/ebitengine/oto/v3"
)

const otoAvailable = true

// oto allows a single context per process.
var (
	otoOnce  sync.Once
	otoCtx   *oto.Context
	otoErr   error
	otoShape [2]int
)

func sharedOtoContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   cfg.BufferDuration,
		})
		if otoErr == nil {
			<-ready
			otoShape = [2]int{cfg.SampleRate, cfg.Channels}
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoShape != [2]int{cfg.SampleRate, cfg.Channels} {
		return nil, fmt.Errorf("oto context already open at %d Hz x %d", otoShape[0], otoShape[1])
	}
	return otoCtx, nil
}

// OtoHost plays the renderer through an oto player. The player pulls
// interleaved float32 bytes; Read renders into per-channel scratch buffers
// and interleaves them.
type OtoHost struct {
	cfg    Config
	r      Renderer
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	player  *oto.Player

	// render state, owned by the player goroutine
	out      [][]float32
	view     [][]float32
	elevated bool
	live     atomic.Bool

	// Stats
	buffers atomic.Int64
	frames  atomic.Int64
}

func newOtoHost(cfg Config, r Renderer, logger *slog.Logger) (Host, error) {
	return &OtoHost{
		cfg:    cfg,
		r:      r,
		logger: logger,
		out:    channelBuffers(cfg.Channels, cfg.BufferSize()),
		view:   make([][]float32, cfg.Channels),
	}, nil
}

// Start opens the shared context, calls Setup and starts the player.
func (o *OtoHost) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.running {
		return nil
	}

	octx, err := sharedOtoContext(o.cfg)
	if err != nil {
		return fmt.Errorf("open oto context: %w", err)
	}
	if err := o.r.Setup(float64(o.cfg.SampleRate), o.cfg.Channels); err != nil {
		return fmt.Errorf("renderer setup: %w", err)
	}

	o.live.Store(true)
	o.player = octx.NewPlayer(o)
	o.player.SetBufferSize(o.cfg.BufferBytes())
	o.player.Play()
	o.running = true

	o.logger.Info("oto audio host started",
		"sample_rate", o.cfg.SampleRate,
		"channels", o.cfg.Channels,
		"buffer_bytes", o.cfg.BufferBytes(),
	)
	return nil
}

// Read implements io.Reader for the oto player.
func (o *OtoHost) Read(p []byte) (int, error) {
	if !o.elevated {
		o.elevated = true
		if o.cfg.RealtimePriority > 0 {
			runtime.LockOSThread()
			elevate(o.cfg.RealtimePriority, o.logger)
		}
	}

	frameBytes := 4 * o.cfg.Channels
	frames := len(p) / frameBytes
	if !o.live.Load() {
		clear(p[:frames*frameBytes])
		return frames * frameBytes, nil
	}

	off := 0
	for frames > 0 {
		n := min(frames, len(o.out[0]))
		for ch := range o.view {
			o.view[ch] = o.out[ch][:n]
		}
		o.r.Render(o.view)
		o.buffers.Add(1)
		o.frames.Add(int64(n))

		for i := range n {
			for ch := range o.view {
				binary.LittleEndian.PutUint32(p[off:], math32.Float32bits(o.view[ch][i]))
				off += 4
			}
		}
		frames -= n
	}
	return off, nil
}

// Stop closes the player and calls Cleanup.
func (o *OtoHost) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil
	}
	o.running = false
	o.live.Store(false)

	err := o.player.Close()
	o.player = nil
	o.r.Cleanup()

	o.logger.Info("oto audio host stopped", "buffers", o.buffers.Load())
	return err
}

// Config returns the audio configuration.
func (o *OtoHost) Config() Config {
	return o.cfg
}

// Name returns "oto".
func (o *OtoHost) Name() string {
	return string(BackendOto)
}

// Close releases resources.
func (o *OtoHost) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	return o.Stop()
}

// Stats returns host statistics.
func (o *OtoHost) Stats() HostStats {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	return HostStats{
		BuffersRendered: o.buffers.Load(),
		FramesRendered:  o.frames.Load(),
		Running:         running,
		Backend:         o.Name(),
	}
}

// Ensure OtoHost implements Host.
var _ Host = (*OtoHost)(nil)
