// latency-check - measures command round-trip time to the capture server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-sonify/internal/config"
	"github.com/teslashibe/go-sonify/internal/log"
	"github.com/teslashibe/go-sonify/pkg/latency"
	"github.com/teslashibe/go-sonify/pkg/sonify"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

func main() {
	path := flag.String("config", config.ConfigPath(), "Experiment config file")
	level := flag.String("log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	requests := flag.Int("n", latency.DefaultConfig().Requests, "Number of version requests")
	interval := flag.Duration("interval", 0, "Pause between requests")
	transport := flag.String("transport", "", "Telemetry transport: qtm, bridge, synthetic")
	host := flag.String("host", "", "Capture server host (overrides QTM_HOST env var)")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()

	log.Init(*level)
	logger := log.Component("latency")

	cfg, err := sonify.LoadConfig(*path)
	if err != nil {
		logger.Warn("config not loaded, using defaults", "error", err)
		cfg = sonify.DefaultConfig()
	}
	cfg.LoadEnvConfig()
	if *transport != "" {
		cfg.Telemetry.Transport = telemetry.Transport(*transport)
	}
	if *host != "" {
		cfg.Telemetry.Host = *host
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	feed, err := sonify.NewFeed(cfg.Telemetry, cfg.Subjects, uuid.NewString(), logger)
	if err != nil {
		fatal("create feed", err)
	}
	defer feed.Close()

	dialCtx, dialCancel := context.WithTimeout(ctx, max(cfg.Telemetry.DialTimeout, time.Second))
	err = feed.Connect(dialCtx)
	dialCancel()
	if err != nil {
		fatal("connect", err)
	}

	probe, err := latency.New(latency.Config{Requests: *requests, Interval: *interval}, feed, logger)
	if err != nil {
		fatal("configuration error", err)
	}

	res, err := probe.Run(ctx)
	if err != nil && res.Requests == 0 {
		fatal("probe failed", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	} else {
		fmt.Printf("%s (%s)\n", res, res.Version)
	}
	if err != nil {
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
