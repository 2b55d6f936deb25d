package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Panel merges every configured input source into one latch. The web
// button reaches it through Press.
type Panel struct {
	latch   Latch
	logger  *slog.Logger
	sources []string
	closers []io.Closer
}

// Open starts the configured sources. A missing terminal only disables the
// keyboard; GPIO and MIDI failures are returned.
func Open(ctx context.Context, cfg Config, onInterrupt func(), logger *slog.Logger) (*Panel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Panel{
		logger:  logger,
		sources: []string{"web"},
	}

	if cfg.GPIO.Enabled {
		g, err := OpenGPIO(ctx, cfg.GPIO, &p.latch, logger.With("input", "gpio"))
		if err != nil {
			p.Close()
			return nil, err
		}
		p.add("gpio", g)
	}

	if cfg.MIDI.Enabled {
		if !midiAvailable {
			p.Close()
			return nil, fmt.Errorf("operator: midi input is not compiled in")
		}
		m, err := OpenMIDI(cfg.MIDI, &p.latch, logger.With("input", "midi"))
		if err != nil {
			p.Close()
			return nil, err
		}
		p.add("midi", m)
	}

	if cfg.Keyboard {
		k, err := OpenKeyboard(ctx, &p.latch, onInterrupt, logger.With("input", "keyboard"))
		switch {
		case errors.Is(err, ErrNotTerminal):
			logger.Warn("keyboard input disabled", "error", err)
		case err != nil:
			p.Close()
			return nil, err
		default:
			p.add("keyboard", k)
		}
	}

	logger.Info("operator inputs ready", "sources", p.sources)
	return p, nil
}

func (p *Panel) add(name string, c io.Closer) {
	p.sources = append(p.sources, name)
	p.closers = append(p.closers, c)
}

// Press records a press from a virtual source.
func (p *Panel) Press() {
	p.latch.Press()
}

// Pressed consumes a pending press from any source.
func (p *Panel) Pressed() bool {
	return p.latch.Pressed()
}

// Presses returns the number of presses seen from all sources.
func (p *Panel) Presses() int64 {
	return p.latch.Presses()
}

// Sources lists the active input sources.
func (p *Panel) Sources() []string {
	return p.sources
}

// Close stops every source in reverse order.
func (p *Panel) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
