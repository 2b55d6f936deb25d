// Package qtm implements telemetry.Feed over the Qualisys Track Manager
// real-time protocol (version 1.x, little-endian TCP).
//
// A reader goroutine demultiplexes the connection: data packets update a
// one-slot latest-frame mailbox, command, XML and error packets answer the
// single outstanding command.
package qtm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-sonify/pkg/metrics"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Expected reply prefixes.
const (
	replyConnected = "QTM RT Interface connected"
	replyVersion   = "Version set to"
	replyMaster    = "You are now master"
	replyStart     = "Starting measurement"
	replyStop      = "Stopping measurement"
	replyEvent     = "Event set"
)

var _ telemetry.Feed = (*Client)(nil)

// Client is a QTM real-time session.
type Client struct {
	cfg    telemetry.Config
	logger *slog.Logger

	// cmdMu serializes commands so each reply matches its request.
	cmdMu sync.Mutex

	mu      sync.Mutex
	conn    net.Conn
	done    chan struct{}
	readErr error
	closed  bool

	replies chan packet
	frames  chan *telemetry.Frame
}

// New returns an unconnected client.
func New(cfg telemetry.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "qtm"),
		replies: make(chan packet, 4),
		frames:  make(chan *telemetry.Frame, 1),
	}
}

// Connect dials the server, waits for its greeting and negotiates the
// protocol version. Taking control is attempted but not required; without it
// event tags and capture control fail individually.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return telemetry.ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.CommandTimeout))
	greeting, err := readPacket(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("read greeting: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if greeting.typ != PacketCommand || !strings.HasPrefix(greeting.text(), replyConnected) {
		conn.Close()
		return fmt.Errorf("unexpected greeting %s %q: %w", greeting.typ, greeting.text(), telemetry.ErrCommandFailed)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.readErr = nil
	c.mu.Unlock()
	go c.readLoop(conn, done)

	version := fmt.Sprintf("Version %d.%d", c.cfg.MajorVersion, c.cfg.MinorVersion)
	if _, err := c.expect(ctx, version, replyVersion); err != nil {
		c.Close()
		return err
	}

	take := "TakeControl"
	if c.cfg.Password != "" {
		take += " " + c.cfg.Password
	}
	if _, err := c.expect(ctx, take, replyMaster); err != nil {
		c.logger.Warn("could not take control, event tags and capture control unavailable", "error", err)
	}

	c.logger.Info("connected", "addr", addr, "protocol", version)
	return nil
}

// Version implements telemetry.Feed.
func (c *Client) Version(ctx context.Context) (string, error) {
	p, err := c.command(ctx, "QTMVersion", true)
	if err != nil {
		return "", err
	}
	return p.text(), nil
}

// Markers implements telemetry.Feed.
func (c *Client) Markers(ctx context.Context) ([]telemetry.Marker, error) {
	p, err := c.command(ctx, "GetParameters 3D", true)
	if err != nil {
		return nil, err
	}
	if p.typ != PacketXML {
		return nil, fmt.Errorf("GetParameters 3D: got %s %q: %w", p.typ, p.text(), telemetry.ErrCommandFailed)
	}
	return parseMarkers(p.body)
}

// Receive implements telemetry.Feed. It returns the most recent frame; frames
// that arrived while nobody was receiving are discarded.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) (*telemetry.Frame, error) {
	done, err := c.session()
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-c.frames:
		return f, nil
	case <-timer.C:
		return nil, telemetry.ErrTimeout
	case <-done:
		return nil, c.failure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartStreaming implements telemetry.Feed.
func (c *Client) StartStreaming(ctx context.Context) error {
	c.drainFrames()
	_, err := c.command(ctx, "StreamFrames AllFrames 3D", false)
	return err
}

// StopStreaming implements telemetry.Feed.
func (c *Client) StopStreaming(ctx context.Context) error {
	_, err := c.command(ctx, "StreamFrames Stop", false)
	c.drainFrames()
	return err
}

// StartCapture implements telemetry.Feed.
func (c *Client) StartCapture(ctx context.Context) error {
	_, err := c.expect(ctx, "Start", replyStart)
	return err
}

// StopCapture implements telemetry.Feed.
func (c *Client) StopCapture(ctx context.Context) error {
	_, err := c.expect(ctx, "Stop", replyStop)
	return err
}

// SendEvent implements telemetry.Feed.
func (c *Client) SendEvent(ctx context.Context, tag telemetry.Tag) error {
	_, err := c.expect(ctx, "SetQTMEvent "+tag.String(), replyEvent)
	return err
}

// Close implements telemetry.Feed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// expect sends cmd and checks that the reply starts with prefix.
func (c *Client) expect(ctx context.Context, cmd, prefix string) (packet, error) {
	p, err := c.command(ctx, cmd, true)
	if err != nil {
		return p, err
	}
	if !strings.HasPrefix(p.text(), prefix) {
		return p, fmt.Errorf("%s: %q: %w", cmd, p.text(), telemetry.ErrCommandFailed)
	}
	return p, nil
}

// command sends one command packet and, when reply is set, waits for the
// answer. Error packets become ErrCommandFailed.
func (c *Client) command(ctx context.Context, cmd string, reply bool) (packet, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	done, err := c.session()
	if err != nil {
		return packet{}, err
	}

	// answers to abandoned commands
	for len(c.replies) > 0 {
		<-c.replies
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	start := time.Now()
	_ = conn.SetWriteDeadline(start.Add(c.cfg.CommandTimeout))
	if err := writePacket(conn, PacketCommand, commandBody(cmd)); err != nil {
		return packet{}, fmt.Errorf("%s: %w", cmd, err)
	}
	if !reply {
		return packet{}, nil
	}

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case p := <-c.replies:
		metrics.CommandLatencySeconds.Observe(time.Since(start).Seconds())
		if p.typ == PacketError {
			return p, fmt.Errorf("%s: %q: %w", cmd, p.text(), telemetry.ErrCommandFailed)
		}
		return p, nil
	case <-timer.C:
		return packet{}, fmt.Errorf("%s: %w", cmd, telemetry.ErrTimeout)
	case <-done:
		return packet{}, c.failure()
	case <-ctx.Done():
		return packet{}, ctx.Err()
	}
}

// readLoop owns the read side of conn until it fails or is closed.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		p, err := readPacket(conn)
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		switch p.typ {
		case PacketData:
			frame, err := parseData(p.body)
			if err != nil {
				c.logger.Debug("bad data packet", "error", err)
				continue
			}
			c.publish(frame)
		case PacketCommand, PacketXML, PacketError:
			select {
			case c.replies <- p:
			default:
				c.logger.Warn("unsolicited reply dropped", "type", p.typ.String(), "text", p.text())
			}
		case PacketEvent:
			if len(p.body) > 0 {
				c.logger.Debug("server event", "event", p.body[0])
			}
		case PacketNoMoreData:
			c.logger.Debug("no more data")
		default:
			c.logger.Debug("ignoring packet", "type", p.typ.String(), "bytes", len(p.body))
		}
	}
}

// publish replaces any unread frame with frame. Only readLoop sends on
// c.frames, so the second send cannot block.
func (c *Client) publish(frame *telemetry.Frame) {
	select {
	case <-c.frames:
	default:
	}
	select {
	case c.frames <- frame:
	default:
	}
}

func (c *Client) drainFrames() {
	select {
	case <-c.frames:
	default:
	}
}

// session returns the reader's done channel for the live connection.
func (c *Client) session() (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, telemetry.ErrClosed
	}
	if c.conn == nil {
		return nil, telemetry.ErrNotConnected
	}
	return c.done, nil
}

// failure reports why the reader stopped.
func (c *Client) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return telemetry.ErrClosed
	}
	if c.readErr != nil {
		return fmt.Errorf("connection lost: %w", c.readErr)
	}
	return telemetry.ErrNotConnected
}
