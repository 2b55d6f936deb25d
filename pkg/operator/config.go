package operator

import (
	"fmt"
	"time"
)

// Config selects and tunes the operator input sources. The web button is
// always available through Panel.Press.
type Config struct {
	// Keyboard reads space or enter from the controlling terminal.
	Keyboard bool `yaml:"keyboard" json:"keyboard"`

	GPIO GPIOConfig `yaml:"gpio" json:"gpio"`
	MIDI MIDIConfig `yaml:"midi" json:"midi"`
}

// GPIOConfig configures a sysfs GPIO button.
type GPIOConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Pin is the kernel GPIO number.
	Pin int `yaml:"pin" json:"pin"`

	// ActiveLow inverts the line: a pressed button reads 0.
	ActiveLow bool `yaml:"active_low" json:"active_low"`

	// PollInterval is the sampling period.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	// Debounce is how long a level must hold before it counts.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`

	// Root is the sysfs GPIO directory.
	Root string `yaml:"root" json:"root"`
}

// MIDIConfig configures a MIDI foot pedal or pad.
type MIDIConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Port is a substring of the input port name. Empty selects the first port.
	Port string `yaml:"port" json:"port"`

	// Note triggers on note-on with non-zero velocity. -1 disables.
	Note int `yaml:"note" json:"note"`

	// Control triggers when the controller crosses 64 upwards. -1 disables.
	Control int `yaml:"control" json:"control"`
}

// DefaultConfig returns the lab defaults: the cape button on GPIO 115,
// pressed low.
func DefaultConfig() Config {
	return Config{
		GPIO: GPIOConfig{
			Pin:          115,
			ActiveLow:    true,
			PollInterval: 5 * time.Millisecond,
			Debounce:     20 * time.Millisecond,
			Root:         "/sys/class/gpio",
		},
		MIDI: MIDIConfig{
			Note:    -1,
			Control: 64,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.GPIO.Enabled {
		if c.GPIO.Pin < 0 {
			return fmt.Errorf("operator: invalid gpio pin %d", c.GPIO.Pin)
		}
		if c.GPIO.PollInterval <= 0 {
			return fmt.Errorf("operator: gpio poll_interval must be positive")
		}
		if c.GPIO.Debounce < 0 {
			return fmt.Errorf("operator: gpio debounce must not be negative")
		}
		if c.GPIO.Root == "" {
			return fmt.Errorf("operator: gpio root is required")
		}
	}
	if c.MIDI.Enabled {
		if c.MIDI.Note < -1 || c.MIDI.Note > 127 {
			return fmt.Errorf("operator: midi note %d out of range", c.MIDI.Note)
		}
		if c.MIDI.Control < -1 || c.MIDI.Control > 127 {
			return fmt.Errorf("operator: midi control %d out of range", c.MIDI.Control)
		}
		if c.MIDI.Note < 0 && c.MIDI.Control < 0 {
			return fmt.Errorf("operator: midi needs a note or a control")
		}
	}
	return nil
}
