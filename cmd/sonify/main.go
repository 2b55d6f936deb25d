// Sonify - motion capture sonification for two-subject coordination experiments.
// Streams marker positions from the capture server, maps them to pitch and
// runs the operator-paced experiment protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-sonify/internal/config"
	"github.com/teslashibe/go-sonify/internal/log"
	"github.com/teslashibe/go-sonify/pkg/audioio"
	"github.com/teslashibe/go-sonify/pkg/sonify"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

func main() {
	cfg, level, ok := parseFlags()
	if !ok {
		return
	}

	log.Init(level)
	logger := log.Component("sonify")

	app, err := sonify.New(cfg, logger)
	if err != nil {
		fatal("configuration error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		app.Shutdown()
		fatal("initialization failed", err)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		app.Shutdown()
		fatal("runtime error", err)
	}
}

// parseFlags loads the config file and applies flag and environment
// overrides. ok is false when the command only printed information.
func parseFlags() (sonify.Config, string, bool) {
	path := flag.String("config", config.ConfigPath(), "Experiment config file (overrides SONIFY_CONFIG env var)")
	level := flag.String("log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	transport := flag.String("transport", "", "Telemetry transport: qtm, bridge, synthetic")
	host := flag.String("host", "", "Capture server host (overrides QTM_HOST env var)")
	backend := flag.String("backend", "", "Audio backend: auto, portaudio, oto, headless")
	device := flag.String("device", "", "Output device name (portaudio only)")
	webAddr := flag.String("web", "", "Operator console listen address, \"off\" to disable")
	keyboard := flag.Bool("keyboard", false, "Accept space/enter on the terminal as the operator button")
	listBackends := flag.Bool("list-backends", false, "Print compiled audio backends and exit")
	flag.Parse()

	if *listBackends {
		for _, b := range audioio.AvailableBackends() {
			fmt.Println(b)
		}
		return sonify.Config{}, "", false
	}

	cfg, err := sonify.LoadConfig(*path)
	if err != nil {
		fatal("load config", err)
	}
	cfg.LoadEnvConfig()

	if *transport != "" {
		cfg.Telemetry.Transport = telemetry.Transport(*transport)
	}
	if *host != "" {
		cfg.Telemetry.Host = *host
	}
	if *backend != "" {
		cfg.Audio.Backend = audioio.Backend(*backend)
	}
	if *device != "" {
		cfg.Audio.Device = *device
	}
	switch *webAddr {
	case "":
	case "off":
		cfg.Web.Enabled = false
	default:
		cfg.Web.Enabled, cfg.Web.Addr = true, *webAddr
	}
	if *keyboard {
		cfg.Operator.Keyboard = true
	}
	return cfg, *level, true
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
