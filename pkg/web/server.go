// Package web serves the operator status API: experiment status, the
// continue button, a status websocket and Prometheus metrics.
package web

import (
	"context"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-sonify/pkg/hub"
	"github.com/teslashibe/go-sonify/pkg/protocol"
)

// Controller is the application surface exposed over HTTP.
type Controller interface {
	// Snapshot returns the current status, encoded as JSON.
	Snapshot() any

	// Continue presses the operator button.
	Continue() error
}

// Server is the operator status server
type Server struct {
	cfg    Config
	app    *fiber.App
	ctrl   Controller
	logger *slog.Logger

	// Hub for websocket broadcast
	statusHub *hub.Hub
}

// NewServer creates a new status server
func NewServer(cfg Config, ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		logger:    logger,
		statusHub: hub.New("status", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-sonify",
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/continue", s.handleContinue)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start runs the hub and serves on the configured address until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	s.logger.Info("status server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve runs the hub and serves on ln until Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
}

// Publish broadcasts a status update to websocket clients.
func (s *Server) Publish(status any) {
	m, err := protocol.NewStatusMessage(status)
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		return
	}
	msg, err := hub.FromProtocol(m)
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		return
	}
	s.statusHub.Broadcast(msg)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return s.statusHub.ClientCount()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
