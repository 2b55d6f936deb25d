package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-sonify/internal/httpc"
	"github.com/teslashibe/go-sonify/pkg/protocol"
)

// ErrRejected is returned when the console refuses a continue request.
var ErrRejected = errors.New("continue rejected")

// Client drives a running console from another machine.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the console at base, e.g.
// "http://lab-pi:8080". A non-positive timeout uses the httpc default.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: httpc.NewClient(timeout),
	}
}

// Status decodes the current status into v.
func (c *Client) Status(ctx context.Context, v any) error {
	return httpc.GetJSON(ctx, c.http, c.base+"/api/status", v)
}

// Continue presses the operator button and decodes the resulting status into
// v. A refused press wraps ErrRejected.
func (c *Client) Continue(ctx context.Context, v any) error {
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/continue", nil, v)
	var serr *httpc.StatusError
	if errors.As(err, &serr) && serr.Code == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrRejected, serr.Message)
	}
	return err
}

// Watch streams status updates to fn until ctx is done or the connection
// drops. The first update is the status at connect time.
func (c *Client) Watch(ctx context.Context, fn func(json.RawMessage)) error {
	u, err := url.Parse(c.base + "/ws/status")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	dialer := websocket.Dialer{HandshakeTimeout: httpc.DefaultConnectTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeStatus {
			continue
		}
		fn(msg.Data)
	}
}
