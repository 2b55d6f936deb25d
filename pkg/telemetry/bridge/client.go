// Package bridge implements telemetry.Feed over a websocket relay.
//
// The relay runs on the capture PC, talks to the capture server locally and
// forwards 3D frames and command replies as protocol messages. This keeps the
// audio host off the capture network when the two are on different subnets.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-sonify/pkg/metrics"
	"github.com/teslashibe/go-sonify/pkg/protocol"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// ClientName identifies this program in the hello message.
const ClientName = "go-sonify"

var _ telemetry.Feed = (*Client)(nil)

// Client is a bridge session.
type Client struct {
	cfg     telemetry.Config
	session string
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	ws      *websocket.Conn
	done    chan struct{}
	readErr error
	closed  bool
	pending map[uint64]chan *protocol.ReplyData

	nextID atomic.Uint64
	frames chan *telemetry.Frame
}

// New returns an unconnected client. session is announced in the hello
// message so the relay can attribute its logs.
func New(cfg telemetry.Config, session string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		session: session,
		logger:  logger.With("component", "bridge"),
		pending: make(map[uint64]chan *protocol.ReplyData),
		frames:  make(chan *telemetry.Frame, 1),
	}
}

// Connect implements telemetry.Feed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return telemetry.ErrClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", c.cfg.BridgeURL, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.done = done
	c.readErr = nil
	c.mu.Unlock()

	hello, err := protocol.NewHelloMessage(c.session, ClientName, "")
	if err != nil {
		ws.Close()
		return err
	}
	if err := c.send(hello); err != nil {
		ws.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	go c.readLoop(ws, done)

	c.logger.Info("connected", "url", c.cfg.BridgeURL, "session", c.session)
	return nil
}

// Version implements telemetry.Feed.
func (c *Client) Version(ctx context.Context) (string, error) {
	r, err := c.call(ctx, protocol.CommandVersion, "")
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

// Markers implements telemetry.Feed.
func (c *Client) Markers(ctx context.Context) ([]telemetry.Marker, error) {
	r, err := c.call(ctx, protocol.CommandMarkers, "")
	if err != nil {
		return nil, err
	}
	markers := make([]telemetry.Marker, len(r.Markers))
	for i, m := range r.Markers {
		markers[i] = telemetry.Marker{Index: m.Index, Label: m.Label}
	}
	return markers, nil
}

// Receive implements telemetry.Feed. Only the latest relayed frame is kept.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) (*telemetry.Frame, error) {
	done, err := c.live()
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
	_, err := c.call(ctx, protocol.CommandStreamStart, "")
	return err
}

// StopStreaming implements telemetry.Feed.
func (c *Client) StopStreaming(ctx context.Context) error {
	_, err := c.call(ctx, protocol.CommandStreamStop, "")
	c.drainFrames()
	return err
}

// StartCapture implements telemetry.Feed.
func (c *Client) StartCapture(ctx context.Context) error {
	_, err := c.call(ctx, protocol.CommandCaptureStart, "")
	return err
}

// StopCapture implements telemetry.Feed.
func (c *Client) StopCapture(ctx context.Context) error {
	_, err := c.call(ctx, protocol.CommandCaptureStop, "")
	return err
}

// SendEvent implements telemetry.Feed.
func (c *Client) SendEvent(ctx context.Context, tag telemetry.Tag) error {
	_, err := c.call(ctx, protocol.CommandEvent, tag.String())
	return err
}

// Close implements telemetry.Feed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return ws.Close()
}

// call sends a command and waits for the reply with the same id.
func (c *Client) call(ctx context.Context, name, arg string) (*protocol.ReplyData, error) {
	done, err := c.live()
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	ch := make(chan *protocol.ReplyData, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg, err := protocol.NewCommandMessage(id, name, arg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := c.send(msg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		metrics.CommandLatencySeconds.Observe(time.Since(start).Seconds())
		if !r.OK {
			return r, fmt.Errorf("%s: %q: %w", name, r.Text, telemetry.ErrCommandFailed)
		}
		return r, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", name, telemetry.ErrTimeout)
	case <-done:
		return nil, c.failure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send writes one message. gorilla connections allow a single writer.
func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.CommandTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop owns the read side of ws until it fails or is closed.
func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Debug("bad message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeFrame:
			fd, err := msg.GetFrameData()
			if err != nil {
				c.logger.Debug("bad frame", "error", err)
				continue
			}
			c.publish(toFrame(fd))
		case protocol.TypeReply:
			r, err := msg.GetReplyData()
			if err != nil {
				c.logger.Debug("bad reply", "error", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[r.ID]
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("reply to abandoned command", "id", r.ID)
				continue
			}
			select {
			case ch <- r:
			default:
			}
		case protocol.TypePing:
			var ping protocol.PingData
			if err := msg.ParseData(&ping); err != nil {
				continue
			}
			pong, err := protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli())
			if err == nil {
				if err := c.send(pong); err != nil {
					c.logger.Debug("pong failed", "error", err)
				}
			}
		default:
			c.logger.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func toFrame(fd *protocol.FrameData) *telemetry.Frame {
	pos := fd.Positions()
	f := &telemetry.Frame{
		Number:    fd.Number,
		Timestamp: fd.Timestamp,
		Points:    make([]telemetry.Point, len(pos)),
	}
	for i, p := range pos {
		f.Points[i] = telemetry.Point(p)
	}
	return f
}

// publish replaces any unread frame with frame.
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

func (c *Client) live() (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, telemetry.ErrClosed
	}
	if c.ws == nil {
		return nil, telemetry.ErrNotConnected
	}
	return c.done, nil
}

func (c *Client) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return telemetry.ErrClosed
	}
	if c.readErr != nil {
		return fmt.Errorf("bridge connection lost: %w", c.readErr)
	}
	return telemetry.ErrNotConnected
}
