// relay - runs next to the capture server and serves its frames and commands
// to go-sonify instances using the bridge transport.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-sonify/internal/config"
	"github.com/teslashibe/go-sonify/internal/log"
	"github.com/teslashibe/go-sonify/pkg/relay"
	"github.com/teslashibe/go-sonify/pkg/sonify"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

func main() {
	path := flag.String("config", config.ConfigPath(), "Experiment config file (telemetry section is used)")
	level := flag.String("log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	addr := flag.String("addr", relay.DefaultConfig().Addr, "Listen address for bridge sessions")
	host := flag.String("host", "", "Capture server host (overrides QTM_HOST env var)")
	synthetic := flag.Bool("synthetic", false, "Relay a synthetic feed instead of the capture server")
	flag.Parse()

	log.Init(*level)
	logger := log.Component("relay")

	cfg, err := sonify.LoadConfig(*path)
	if err != nil {
		logger.Warn("config not loaded, using defaults", "error", err)
		cfg = sonify.DefaultConfig()
	}
	cfg.LoadEnvConfig()
	cfg.Telemetry.Transport = telemetry.TransportQTM
	if *synthetic {
		cfg.Telemetry.Transport = telemetry.TransportSynthetic
	}
	if *host != "" {
		cfg.Telemetry.Host = *host
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	feed, err := sonify.NewFeed(cfg.Telemetry, cfg.Subjects, "relay", logger)
	if err != nil {
		fatal("create feed", err)
	}
	defer feed.Close()

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.Telemetry.DialTimeout)
	err = feed.Connect(dialCtx)
	dialCancel()
	if err != nil {
		fatal("connect", err)
	}

	rcfg := relay.DefaultConfig()
	rcfg.Addr = *addr
	rcfg.CommandTimeout = cfg.Telemetry.CommandTimeout
	r, err := relay.New(rcfg, feed, logger)
	if err != nil {
		fatal("configuration error", err)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	r.RegisterRoutes(app)
	r.RegisterAPIRoutes(app.Group("/api"))

	go func() {
		logger.Info("relay listening", "addr", rcfg.Addr)
		if err := app.Listen(rcfg.Addr); err != nil {
			logger.Error("listen", "error", err)
			cancel()
		}
	}()

	if err := r.Run(ctx); err != nil {
		logger.Error("relay stopped", "error", err)
	}
	_ = app.Shutdown()
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
