//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioAvailable = false

// newPortAudioHost returns an error unless built with -tags portaudio.
func newPortAudioHost(cfg Config, r Renderer, logger *slog.Logger) (Host, error) {
	return nil, fmt.Errorf("PortAudio support requires building with -tags portaudio")
}
