//go:build headless

package audioio

import (
	"fmt"
	"log/slog"
)

const otoAvailable = false

// newOtoHost returns an error in headless builds.
func newOtoHost(cfg Config, r Renderer, logger *slog.Logger) (Host, error) {
	return nil, fmt.Errorf("oto is not available in headless builds")
}
