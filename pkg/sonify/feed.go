package sonify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-sonify/pkg/motion"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
	"github.com/teslashibe/go-sonify/pkg/telemetry/bridge"
	"github.com/teslashibe/go-sonify/pkg/telemetry/qtm"
)

// NewFeed creates the telemetry feed selected by cfg.Transport.
func NewFeed(cfg telemetry.Config, subjects []string, session string, logger *slog.Logger) (telemetry.Feed, error) {
	switch cfg.Transport {
	case telemetry.TransportQTM:
		return qtm.New(cfg, logger), nil
	case telemetry.TransportBridge:
		return bridge.New(cfg, session, logger), nil
	case telemetry.TransportSynthetic:
		return telemetry.NewSynthetic(subjects), nil
	default:
		return nil, fmt.Errorf("unknown telemetry transport %q", cfg.Transport)
	}
}

// streamControl starts the frame stream and resolves markers before a
// sonified trial, and stops the stream after it.
type streamControl struct {
	feed     telemetry.Feed
	ingestor *motion.Ingestor
	logger   *slog.Logger
}

// Begin starts streaming and binds every subject. On a binding failure the
// stream is stopped again.
func (s *streamControl) Begin(ctx context.Context) error {
	if err := s.feed.StartStreaming(ctx); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	if err := s.ingestor.Reindex(ctx); err != nil {
		if serr := s.feed.StopStreaming(ctx); serr != nil {
			s.logger.Warn("stop streaming after failed reindex", "error", serr)
		}
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

// End stops streaming.
func (s *streamControl) End(ctx context.Context) error {
	if err := s.feed.StopStreaming(ctx); err != nil {
		return fmt.Errorf("stop streaming: %w", err)
	}
	return nil
}
