// Package config provides environment helpers for go-sonify commands.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Default endpoint configuration.
const (
	DefaultQTMHost    = "192.168.6.1"
	DefaultQTMPort    = 22222
	DefaultConfigPath = "configs/experiment.yaml"
	DefaultLogLevel   = "info"
	DefaultConsoleURL = "http://localhost:8080"
)

// QTMHost returns the capture host from QTM_HOST env var.
// Falls back to the provided default if not set.
func QTMHost(defaultHost string) string {
	if host := os.Getenv("QTM_HOST"); host != "" {
		return host
	}
	return defaultHost
}

// QTMPort returns the capture port from QTM_PORT env var.
// Falls back to the provided default if unset or not a valid port.
func QTMPort(defaultPort int) int {
	v := os.Getenv("QTM_PORT")
	if v == "" {
		return defaultPort
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return defaultPort
	}
	return port
}

// ConfigPath returns the experiment config path from SONIFY_CONFIG env var or default.
func ConfigPath() string {
	if path := os.Getenv("SONIFY_CONFIG"); path != "" {
		return path
	}
	return DefaultConfigPath
}

// ConsoleURL returns the operator console base URL from SONIFY_CONSOLE env var or default.
func ConsoleURL() string {
	if u := os.Getenv("SONIFY_CONSOLE"); u != "" {
		return u
	}
	return DefaultConsoleURL
}

// LogLevel returns the log level from LOG_LEVEL env var or default.
func LogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return DefaultLogLevel
}

// Address joins a host and port into a dial address.
func Address(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
