package operator

import (
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// excludedPorts are virtual or system ports never picked automatically.
var excludedPorts = []string{"Midi Through", "Through Port", "Dummy"}

// midiDriver lists input ports. Implemented by the rtmidi driver.
type midiDriver interface {
	Ins() ([]drivers.In, error)
	Close() error
}

// MIDI listens to a foot pedal or pad controller and presses a latch on the
// configured note or controller.
type MIDI struct {
	cfg    MIDIConfig
	latch  *Latch
	logger *slog.Logger

	drv  midiDriver
	in   drivers.In
	stop func()

	// last controller value, owned by the listener goroutine
	ccHigh bool
}

// OpenMIDI opens the configured input port and starts listening.
func OpenMIDI(cfg MIDIConfig, latch *Latch, logger *slog.Logger) (*MIDI, error) {
	drv, err := openDriver()
	if err != nil {
		return nil, fmt.Errorf("open midi driver: %w", err)
	}
	m, err := listenMIDI(drv, cfg, latch, logger)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return m, nil
}

func listenMIDI(drv midiDriver, cfg MIDIConfig, latch *Latch, logger *slog.Logger) (*MIDI, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list midi inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	idx := pickPort(names, cfg.Port)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q among %v", ErrPortNotFound, cfg.Port, names)
	}
	in := ins[idx]

	m := &MIDI{
		cfg:    cfg,
		latch:  latch,
		logger: logger,
		drv:    drv,
		in:     in,
	}

	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("open midi input %s: %w", in, err)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		m.handle(msg)
	}, midi.HandleError(func(err error) {
		logger.Warn("midi listener error", "device", in.String(), "error", err)
	}))
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("listen on %s: %w", in, err)
	}
	m.stop = stop

	logger.Info("midi pedal ready", "device", in.String(), "note", cfg.Note, "control", cfg.Control)
	return m, nil
}

// pickPort returns the index of the first port whose name contains want,
// case-insensitively, skipping virtual ports when want is empty.
func pickPort(names []string, want string) int {
	for i, name := range names {
		if want != "" {
			if containsFold(name, want) {
				return i
			}
			continue
		}
		excluded := false
		for _, pat := range excludedPorts {
			if containsFold(name, pat) {
				excluded = true
				break
			}
		}
		if !excluded {
			return i
		}
	}
	return -1
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// handle presses the latch on a matching note-on or on the controller
// crossing the half-way point upwards.
func (m *MIDI) handle(msg midi.Message) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if m.cfg.Note >= 0 && int(key) == m.cfg.Note && vel > 0 {
			m.logger.Debug("midi note press", "channel", ch, "note", key)
			m.latch.Press()
		}
	case msg.GetControlChange(&ch, &key, &vel):
		if m.cfg.Control < 0 || int(key) != m.cfg.Control {
			return
		}
		high := vel >= 64
		if high && !m.ccHigh {
			m.logger.Debug("midi control press", "channel", ch, "control", key)
			m.latch.Press()
		}
		m.ccHigh = high
	}
}

// Close stops listening and releases the port and driver.
func (m *MIDI) Close() error {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	var err error
	if m.in != nil {
		err = m.in.Close()
		m.in = nil
	}
	if derr := m.drv.Close(); err == nil {
		err = derr
	}
	return err
}
