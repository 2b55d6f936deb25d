//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioHost drives the renderer from a PortAudio callback stream with
// non-interleaved float32 buffers, so Render writes straight into the device
// buffers.
type PortAudioHost struct {
	cfg    Config
	r      Renderer
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stream  *portaudio.Stream

	prioOnce sync.Once

	// Stats
	buffers atomic.Int64
	frames  atomic.Int64
}

func newPortAudioHost(cfg Config, r Renderer, logger *slog.Logger) (Host, error) {
	return &PortAudioHost{
		cfg:    cfg,
		r:      r,
		logger: logger,
	}, nil
}

// Start opens the stream, calls Setup with the negotiated rate and starts
// the callback.
func (p *PortAudioHost) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	dev, err := p.device()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = p.cfg.Channels
	params.SampleRate = float64(p.cfg.SampleRate)
	params.FramesPerBuffer = p.cfg.BufferSize()

	stream, err := portaudio.OpenStream(params, p.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open stream on %s: %w", dev.Name, err)
	}

	rate := float64(p.cfg.SampleRate)
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		rate = info.SampleRate
	}
	if err := p.r.Setup(rate, p.cfg.Channels); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("renderer setup: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}
	p.stream = stream
	p.running = true

	p.logger.Info("portaudio host started",
		"device", dev.Name,
		"sample_rate", rate,
		"channels", p.cfg.Channels,
		"frames_per_buffer", params.FramesPerBuffer,
		"version", portaudio.VersionText(),
	)
	return nil
}

func (p *PortAudioHost) device() (*portaudio.DeviceInfo, error) {
	if p.cfg.Device == "" {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("default output device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == p.cfg.Device && d.MaxOutputChannels >= p.cfg.Channels {
			return d, nil
		}
	}
	return nil, fmt.Errorf("output device %q with %d channels not found", p.cfg.Device, p.cfg.Channels)
}

// callback runs on the PortAudio thread.
func (p *PortAudioHost) callback(out [][]float32) {
	p.prioOnce.Do(func() { elevate(p.cfg.RealtimePriority, p.logger) })

	p.r.Render(out)
	p.buffers.Add(1)
	if len(out) > 0 {
		p.frames.Add(int64(len(out[0])))
	}
}

// Stop stops the stream and calls Cleanup.
func (p *PortAudioHost) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	err := p.stream.Stop()
	p.r.Cleanup()
	if cerr := p.stream.Close(); err == nil {
		err = cerr
	}
	p.stream = nil
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}

	p.logger.Info("portaudio host stopped", "buffers", p.buffers.Load())
	return err
}

// Config returns the audio configuration.
func (p *PortAudioHost) Config() Config {
	return p.cfg
}

// Name returns "portaudio".
func (p *PortAudioHost) Name() string {
	return string(BackendPortAudio)
}

// Close releases resources.
func (p *PortAudioHost) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.Stop()
}

// Stats returns host statistics.
func (p *PortAudioHost) Stats() HostStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return HostStats{
		BuffersRendered: p.buffers.Load(),
		FramesRendered:  p.frames.Load(),
		Running:         running,
		Backend:         p.Name(),
	}
}

// Ensure PortAudioHost implements Host.
var _ Host = (*PortAudioHost)(nil)
