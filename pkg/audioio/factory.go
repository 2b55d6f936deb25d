package audioio

import (
	"fmt"
	"log/slog"
)

// NewHost creates a host that plays r with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewHost(cfg Config, r Renderer, logger *slog.Logger) (Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio host",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_frames", cfg.BufferSize(),
		"realtime_priority", cfg.RealtimePriority,
	)

	switch backend {
	case BackendHeadless:
		return NewHeadlessHost(cfg, r, logger), nil
	case BackendOto:
		return newOtoHost(cfg, r, logger)
	case BackendPortAudio:
		return newPortAudioHost(cfg, r, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best backend compiled into this build.
func detectBestBackend() Backend {
	switch {
	case portAudioAvailable:
		return BackendPortAudio
	case otoAvailable:
		return BackendOto
	default:
		return BackendHeadless
	}
}

// AvailableBackends returns the list of backends compiled into this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendHeadless}

	if otoAvailable {
		backends = append(backends, BackendOto)
	}
	if portAudioAvailable {
		backends = append(backends, BackendPortAudio)
	}

	return backends
}
