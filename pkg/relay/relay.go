// Package relay serves the bridge transport. It runs on the capture PC, holds
// the only connection to the capture server and fans its 3D frames out to
// bridge sessions over websockets, running their commands on their behalf.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-sonify/pkg/metrics"
	"github.com/teslashibe/go-sonify/pkg/protocol"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Config controls the relay.
type Config struct {
	// Addr is the listen address for bridge sessions.
	Addr string `yaml:"addr" json:"addr"`

	// FrameTimeout bounds each upstream Receive while any session streams.
	FrameTimeout time.Duration `yaml:"frame_timeout" json:"frame_timeout"`

	// CommandTimeout bounds each upstream command run for a session.
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8090",
		FrameTimeout:   100 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("relay: addr is required")
	}
	if c.FrameTimeout <= 0 || c.CommandTimeout <= 0 {
		return fmt.Errorf("relay: timeouts must be positive")
	}
	return nil
}

// Session is one connected bridge client.
type Session struct {
	ID        string
	Client    string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	streaming bool
	mu        sync.Mutex
	writeMu   sync.Mutex
}

// Send writes a message to the session.
func (s *Session) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Relay owns the upstream feed and the bridge sessions.
type Relay struct {
	cfg    Config
	feed   telemetry.Feed
	logger *slog.Logger

	mu        sync.RWMutex
	sessions  map[string]*Session
	streamers int
	wake      chan struct{}

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesForwarded  atomic.Uint64
}

// New creates a relay in front of feed. feed must already be connected.
func New(cfg Config, feed telemetry.Feed, logger *slog.Logger) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		cfg:      cfg,
		feed:     feed,
		logger:   logger.With("component", "relay"),
		sessions: make(map[string]*Session),
		wake:     make(chan struct{}, 1),
	}, nil
}

// RegisterRoutes registers the bridge websocket endpoint on a Fiber app.
func (r *Relay) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/bridge", websocket.New(r.handleSession))
	app.Get("/ws/bridge/:id", websocket.New(r.handleSession))
}

// RegisterAPIRoutes registers read-only session routes.
func (r *Relay) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/sessions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": r.SessionInfos(),
			"count":    r.SessionCount(),
		})
	})
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(r.Stats())
	})
}

// Run forwards upstream frames to streaming sessions until ctx is done or
// the upstream feed is closed.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		r.mu.RLock()
		idle := r.streamers == 0
		r.mu.RUnlock()
		if idle {
			select {
			case <-ctx.Done():
				return nil
			case <-r.wake:
			}
			continue
		}

		frame, err := r.feed.Receive(ctx, r.cfg.FrameTimeout)
		switch {
		case err == nil:
			r.forward(frame)
		case errors.Is(err, telemetry.ErrTimeout):
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, telemetry.ErrClosed), errors.Is(err, telemetry.ErrNotConnected):
			return fmt.Errorf("upstream: %w", err)
		default:
			r.logger.Warn("upstream receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.cfg.FrameTimeout):
			}
		}
	}
}

func (r *Relay) forward(frame *telemetry.Frame) {
	points := make([][3]float32, len(frame.Points))
	for i, p := range frame.Points {
		points[i] = [3]float32(p)
	}
	msg, err := protocol.NewFrameMessage(frame.Number, frame.Timestamp, points)
	if err != nil {
		r.logger.Debug("encode frame", "error", err)
		return
	}

	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		if s.streaming {
			targets = append(targets, s)
		}
		s.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, s := range targets {
		r.messagesSent.Add(1)
		if err := s.Send(msg); err != nil {
			r.logger.Debug("frame send failed", "session", s.ID, "error", err)
		}
	}
	r.framesForwarded.Add(1)
	metrics.RelayFramesTotal.Inc()
}

// handleSession serves one bridge websocket.
func (r *Relay) handleSession(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	r.mu.Lock()
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()
	metrics.RelayClients.Set(float64(count))
	r.logger.Info("session connected", "session", id, "total", count)

	defer func() {
		r.release(s)

		r.mu.Lock()
		delete(r.sessions, id)
		count := len(r.sessions)
		r.mu.Unlock()
		metrics.RelayClients.Set(float64(count))
		r.logger.Info("session disconnected", "session", id, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			r.logger.Debug("session read ended", "session", id, "error", err)
			return
		}

		s.mu.Lock()
		s.LastSeen = time.Now()
		s.mu.Unlock()

		r.messagesReceived.Add(1)
		r.handleMessage(s, data)
	}
}

// handleMessage processes one message from a session.
func (r *Relay) handleMessage(s *Session, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		r.logger.Debug("parse error", "session", s.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.Client = hello.Client
		s.mu.Unlock()
		r.logger.Info("hello", "session", s.ID, "client", hello.Client, "client_session", hello.Session)

	case protocol.TypeCommand:
		cmd, err := msg.GetCommandData()
		if err != nil {
			return
		}
		r.reply(s, r.execute(s, cmd))

	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			r.reply(s, pong)
		}
	}
}

// execute runs cmd against the upstream feed.
func (r *Relay) execute(s *Session, cmd *protocol.CommandData) *protocol.Message {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CommandTimeout)
	defer cancel()

	reply := protocol.ReplyData{ID: cmd.ID, OK: true}
	var err error

	switch cmd.Name {
	case protocol.CommandVersion:
		reply.Text, err = r.feed.Version(ctx)
	case protocol.CommandMarkers:
		var markers []telemetry.Marker
		markers, err = r.feed.Markers(ctx)
		for _, m := range markers {
			reply.Markers = append(reply.Markers, protocol.LabelData{Index: m.Index, Label: m.Label})
		}
	case protocol.CommandStreamStart:
		err = r.startStreaming(ctx, s)
	case protocol.CommandStreamStop:
		err = r.stopStreaming(ctx, s)
	case protocol.CommandCaptureStart:
		err = r.feed.StartCapture(ctx)
	case protocol.CommandCaptureStop:
		err = r.feed.StopCapture(ctx)
	case protocol.CommandEvent:
		if len(cmd.Arg) != 1 {
			err = fmt.Errorf("event tag must be one character, got %q", cmd.Arg)
			break
		}
		err = r.feed.SendEvent(ctx, telemetry.Tag(cmd.Arg[0]))
	default:
		err = fmt.Errorf("unknown command %q", cmd.Name)
	}

	if err != nil {
		r.logger.Warn("command failed", "session", s.ID, "command", cmd.Name, "error", err)
		reply.OK = false
		reply.Text = err.Error()
		reply.Markers = nil
	}

	msg, merr := protocol.NewMessage(protocol.TypeReply, reply)
	if merr != nil {
		r.logger.Error("encode reply", "error", merr)
		return nil
	}
	return msg
}

func (r *Relay) reply(s *Session, msg *protocol.Message) {
	if msg == nil {
		return
	}
	r.messagesSent.Add(1)
	if err := s.Send(msg); err != nil {
		r.logger.Debug("reply failed", "session", s.ID, "error", err)
	}
}

// startStreaming starts the upstream stream for the first streaming session.
func (r *Relay) startStreaming(ctx context.Context, s *Session) error {
	r.mu.Lock()
	first := r.streamers == 0
	r.mu.Unlock()

	if first {
		if err := r.feed.StartStreaming(ctx); err != nil {
			return err
		}
	}
	r.setStreaming(s, true)
	return nil
}

// stopStreaming stops the upstream stream once no session streams.
func (r *Relay) stopStreaming(ctx context.Context, s *Session) error {
	if changed, idle := r.setStreaming(s, false); changed && idle {
		return r.feed.StopStreaming(ctx)
	}
	return nil
}

// release drops a departing session from the stream.
func (r *Relay) release(s *Session) {
	if changed, idle := r.setStreaming(s, false); changed && idle {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CommandTimeout)
		defer cancel()
		if err := r.feed.StopStreaming(ctx); err != nil {
			r.logger.Debug("stop upstream stream", "error", err)
		}
	}
}

// setStreaming updates the session flag and the streamer count. It reports
// whether the flag changed and whether no session streams afterwards.
func (r *Relay) setStreaming(s *Session, on bool) (changed, idle bool) {
	s.mu.Lock()
	changed = s.streaming != on
	s.streaming = on
	s.mu.Unlock()

	r.mu.Lock()
	if changed && on {
		r.streamers++
	} else if changed {
		r.streamers--
	}
	idle = r.streamers == 0
	r.mu.Unlock()

	if changed && on {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
	return changed, idle
}

// SessionCount returns the number of connected sessions.
func (r *Relay) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats contains relay statistics.
type Stats struct {
	Sessions         int    `json:"sessions"`
	Streaming        int    `json:"streaming"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesForwarded  uint64 `json:"frames_forwarded"`
}

// Stats returns relay statistics.
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	sessions, streaming := len(r.sessions), r.streamers
	r.mu.RUnlock()

	return Stats{
		Sessions:         sessions,
		Streaming:        streaming,
		MessagesReceived: r.messagesReceived.Load(),
		MessagesSent:     r.messagesSent.Load(),
		FramesForwarded:  r.framesForwarded.Load(),
	}
}

// SessionInfo describes a connected session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Client    string    `json:"client"`
	Streaming bool      `json:"streaming"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// SessionInfos returns info about all connected sessions.
func (r *Relay) SessionInfos() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			Client:    s.Client,
			Streaming: s.streaming,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
		})
		s.mu.Unlock()
	}
	return infos
}
