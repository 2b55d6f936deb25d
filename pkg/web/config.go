package web

import "fmt"

// Config configures the operator status server.
type Config struct {
	// Enabled starts the server with the application.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Addr is the listen address.
	Addr string `yaml:"addr" json:"addr"`

	// AllowOrigins is the CORS origin list.
	AllowOrigins string `yaml:"allow_origins" json:"allow_origins"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Addr:         ":8080",
		AllowOrigins: "*",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("web: addr is required")
	}
	return nil
}
