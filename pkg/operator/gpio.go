package operator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// GPIO polls a sysfs GPIO value file and presses a latch on each debounced
// press.
type GPIO struct {
	cfg    GPIOConfig
	latch  *Latch
	logger *slog.Logger

	value    string
	exported bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenGPIO exports the pin if needed, configures it as an input and starts
// polling.
func OpenGPIO(ctx context.Context, cfg GPIOConfig, latch *Latch, logger *slog.Logger) (*GPIO, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := &GPIO{
		cfg:    cfg,
		latch:  latch,
		logger: logger,
	}

	dir := filepath.Join(cfg.Root, fmt.Sprintf("gpio%d", cfg.Pin))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := writeSysfs(filepath.Join(cfg.Root, "export"), strconv.Itoa(cfg.Pin)); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", cfg.Pin, err)
		}
		g.exported = true
	}
	if err := writeSysfs(filepath.Join(dir, "direction"), "in"); err != nil {
		logger.Warn("gpio direction not set", "pin", cfg.Pin, "error", err)
	}
	g.value = filepath.Join(dir, "value")

	// Read once so a missing or unreadable pin fails here instead of in the loop.
	if _, err := g.read(); err != nil {
		g.unexport()
		return nil, err
	}

	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.poll(ctx)

	logger.Info("gpio button ready", "pin", cfg.Pin, "active_low", cfg.ActiveLow)
	return g, nil
}

func (g *GPIO) poll(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	deb := NewDebouncer(g.cfg.Debounce)
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			level, err := g.read()
			if err != nil {
				if !failing {
					g.logger.Warn("gpio read failed", "pin", g.cfg.Pin, "error", err)
					failing = true
				}
				continue
			}
			failing = false
			if deb.Update(level, now) {
				g.logger.Debug("gpio press", "pin", g.cfg.Pin)
				g.latch.Press()
			}
		}
	}
}

// read returns true when the button is pressed.
func (g *GPIO) read() (bool, error) {
	b, err := os.ReadFile(g.value)
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", g.cfg.Pin, err)
	}
	high := string(bytes.TrimSpace(b)) == "1"
	return high != g.cfg.ActiveLow, nil
}

// Close stops polling and unexports a pin exported by OpenGPIO.
func (g *GPIO) Close() error {
	g.cancel()
	g.wg.Wait()
	return g.unexport()
}

func (g *GPIO) unexport() error {
	if !g.exported {
		return nil
	}
	g.exported = false
	return writeSysfs(filepath.Join(g.cfg.Root, "unexport"), strconv.Itoa(g.cfg.Pin))
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
