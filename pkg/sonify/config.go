// Package sonify wires the telemetry feed, motion ingestion, experiment
// sequencer, render engine, audio host and operator inputs into one
// application.
package sonify

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-sonify/internal/config"
	"github.com/teslashibe/go-sonify/pkg/audioio"
	"github.com/teslashibe/go-sonify/pkg/engine"
	"github.com/teslashibe/go-sonify/pkg/experiment"
	"github.com/teslashibe/go-sonify/pkg/motion"
	"github.com/teslashibe/go-sonify/pkg/operator"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
	"github.com/teslashibe/go-sonify/pkg/web"
)

// Default asset paths and subject labels.
const (
	DefaultUndertone = "res/simple_As3.wav"
	DefaultOvertone  = "res/simple_f4.wav"
)

// DefaultSubjects are the marker labels of the two tracked subjects.
var DefaultSubjects = []string{"CAR_W", "CAR_D"}

// Config holds all configuration for the sonification application.
// Flag parsing is done in cmd/sonify; this struct is data only.
type Config struct {
	// Subjects are the marker labels of the tracked subjects, in subject order.
	Subjects []string `yaml:"subjects" json:"subjects"`

	// Undertone and Overtone are the WAV files played by the read heads.
	Undertone string `yaml:"undertone" json:"undertone"`
	Overtone  string `yaml:"overtone" json:"overtone"`

	Experiment experiment.Config `yaml:"experiment" json:"experiment"`
	Engine     engine.Config     `yaml:"engine" json:"engine"`
	Telemetry  telemetry.Config  `yaml:"telemetry" json:"telemetry"`
	Audio      audioio.Config    `yaml:"audio" json:"audio"`
	Operator   operator.Config   `yaml:"operator" json:"operator"`
	Web        web.Config        `yaml:"web" json:"web"`
}

// DefaultConfig returns the installation defaults.
func DefaultConfig() Config {
	return Config{
		Subjects:   append([]string(nil), DefaultSubjects...),
		Undertone:  DefaultUndertone,
		Overtone:   DefaultOvertone,
		Experiment: experiment.DefaultConfig(),
		Engine:     engine.DefaultConfig(),
		Telemetry:  telemetry.DefaultConfig(),
		Audio:      audioio.DefaultConfig(),
		Operator:   operator.DefaultConfig(),
		Web:        web.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvConfig applies environment overrides.
// Call this after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.Telemetry.Host = config.QTMHost(c.Telemetry.Host)
	c.Telemetry.Port = config.QTMPort(c.Telemetry.Port)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if len(c.Subjects) != motion.NumSubjects {
		return &ConfigError{Field: "subjects", Message: fmt.Sprintf("exactly %d subject labels are required, got %d", motion.NumSubjects, len(c.Subjects))}
	}
	if c.Undertone == "" {
		return &ConfigError{Field: "undertone", Message: "undertone file is required"}
	}
	if c.Overtone == "" {
		return &ConfigError{Field: "overtone", Message: "overtone file is required"}
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"experiment", c.Experiment.Validate},
		{"engine", c.Engine.Validate},
		{"telemetry", c.Telemetry.Validate},
		{"audio", c.Audio.Validate},
		{"operator", c.Operator.Validate},
		{"web", c.Web.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return &ConfigError{Field: s.name, Message: err.Error(), Err: err}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
