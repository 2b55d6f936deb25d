package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Transport selects the feed implementation.
type Transport string

const (
	// TransportQTM connects to the capture server's real-time TCP port.
	TransportQTM Transport = "qtm"

	// TransportBridge reads frames relayed over a websocket.
	TransportBridge Transport = "bridge"

	// TransportSynthetic generates motion locally.
	TransportSynthetic Transport = "synthetic"
)

// Config holds telemetry endpoint configuration.
type Config struct {
	// Transport selects the feed implementation.
	Transport Transport `yaml:"transport" json:"transport"`

	// Host is the capture server address.
	Host string `yaml:"host" json:"host"`

	// Port is the capture server port.
	Port int `yaml:"port" json:"port"`

	// BridgeURL is the websocket URL for TransportBridge.
	BridgeURL string `yaml:"bridge_url" json:"bridge_url"`

	// MajorVersion and MinorVersion select the protocol version.
	MajorVersion int `yaml:"major_version" json:"major_version"`
	MinorVersion int `yaml:"minor_version" json:"minor_version"`

	// Password is sent with TakeControl when the server requires one.
	Password string `yaml:"password" json:"password"`

	// DialTimeout bounds Connect.
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// CommandTimeout bounds every request/response exchange.
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`

	// PacketTimeout bounds each Receive made by the ingestion task.
	PacketTimeout time.Duration `yaml:"packet_timeout" json:"packet_timeout"`
}

// DefaultConfig returns the lab defaults.
func DefaultConfig() Config {
	return Config{
		Transport:      TransportQTM,
		Host:           "192.168.6.1",
		Port:           22222,
		MajorVersion:   1,
		MinorVersion:   23,
		DialTimeout:    5 * time.Second,
		CommandTimeout: 2 * time.Second,
		PacketTimeout:  100 * time.Millisecond,
	}
}

// Validate checks the configuration for the selected transport.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportQTM:
		if c.Host == "" {
			return fmt.Errorf("telemetry: host is required for %s transport", c.Transport)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("telemetry: invalid port %d", c.Port)
		}
		if c.MajorVersion < 1 {
			return fmt.Errorf("telemetry: invalid protocol version %d.%d", c.MajorVersion, c.MinorVersion)
		}
	case TransportBridge:
		if !strings.HasPrefix(c.BridgeURL, "ws://") && !strings.HasPrefix(c.BridgeURL, "wss://") {
			return fmt.Errorf("telemetry: bridge_url must be a ws:// or wss:// URL, got %q", c.BridgeURL)
		}
	case TransportSynthetic:
	default:
		return fmt.Errorf("telemetry: unknown transport %q", c.Transport)
	}
	if c.PacketTimeout <= 0 {
		return fmt.Errorf("telemetry: packet_timeout must be positive")
	}
	return nil
}
