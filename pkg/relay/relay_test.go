package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sonify/pkg/telemetry"
	"github.com/teslashibe/go-sonify/pkg/telemetry/bridge"
)

type testRelay struct {
	relay    *Relay
	upstream *telemetry.Synthetic
	app      *fiber.App
	url      string
}

func startRelay(t *testing.T) *testRelay {
	t.Helper()

	upstream := telemetry.NewSynthetic([]string{"CAR_W", "CAR_D"}, telemetry.WithFrameRate(200))
	require.NoError(t, upstream.Connect(context.Background()))

	cfg := DefaultConfig()
	cfg.FrameTimeout = 20 * time.Millisecond
	r, err := New(cfg, upstream, nil)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	r.RegisterRoutes(app)
	r.RegisterAPIRoutes(app.Group("/api"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Shutdown()
	})

	return &testRelay{
		relay:    r,
		upstream: upstream,
		app:      app,
		url:      "ws://" + ln.Addr().String() + "/ws/bridge",
	}
}

func (tr *testRelay) dial(t *testing.T, id string) *bridge.Client {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Transport = telemetry.TransportBridge
	cfg.BridgeURL = tr.url + "/" + id
	cfg.CommandTimeout = time.Second

	c := bridge.New(cfg, "session-"+id, nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })

	require.Eventually(t, func() bool {
		for _, info := range tr.relay.SessionInfos() {
			if info.ID == id && info.Client == bridge.ClientName {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return c
}

func TestRelay_Commands(t *testing.T) {
	tr := startRelay(t)
	c := tr.dial(t, "lab")
	ctx := context.Background()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "synthetic 1.0", v)

	markers, err := c.Markers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []telemetry.Marker{{Index: 0, Label: "CAR_W"}, {Index: 1, Label: "CAR_D"}}, markers)

	require.NoError(t, c.StartCapture(ctx))
	assert.True(t, tr.upstream.Capturing())
	require.NoError(t, c.SendEvent(ctx, telemetry.TagExperimentStart))
	require.NoError(t, c.SendEvent(ctx, telemetry.TagTaskSonification))
	require.NoError(t, c.StopCapture(ctx))
	assert.False(t, tr.upstream.Capturing())

	assert.Equal(t, []telemetry.Tag{telemetry.TagExperimentStart, telemetry.TagTaskSonification}, tr.upstream.Events())
}

func TestRelay_ForwardsFrames(t *testing.T) {
	tr := startRelay(t)
	c := tr.dial(t, "lab")
	ctx := context.Background()

	require.NoError(t, c.StartStreaming(ctx))
	assert.True(t, tr.upstream.Streaming())

	f, err := c.Receive(ctx, time.Second)
	require.NoError(t, err)
	require.Len(t, f.Points, 2)
	_, err = f.Marker3D(1)
	assert.NoError(t, err)

	require.NoError(t, c.StopStreaming(ctx))
	assert.False(t, tr.upstream.Streaming())
	assert.Positive(t, tr.relay.Stats().FramesForwarded)
}

func TestRelay_SharedStream(t *testing.T) {
	tr := startRelay(t)
	a := tr.dial(t, "a")
	b := tr.dial(t, "b")
	ctx := context.Background()

	require.NoError(t, a.StartStreaming(ctx))
	require.NoError(t, b.StartStreaming(ctx))
	assert.Equal(t, 2, tr.relay.Stats().Streaming)

	require.NoError(t, a.StopStreaming(ctx))
	assert.True(t, tr.upstream.Streaming(), "b still streams")

	_, err := b.Receive(ctx, time.Second)
	require.NoError(t, err)

	// a departing session releases its share of the stream
	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return tr.relay.SessionCount() == 1 && !tr.upstream.Streaming()
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_UpstreamFailure(t *testing.T) {
	tr := startRelay(t)
	c := tr.dial(t, "lab")

	require.NoError(t, tr.upstream.Close())

	err := c.StartCapture(context.Background())
	assert.ErrorIs(t, err, telemetry.ErrCommandFailed)
	assert.Contains(t, err.Error(), telemetry.ErrClosed.Error())
}

func TestRelay_API(t *testing.T) {
	tr := startRelay(t)
	tr.dial(t, "lab")

	resp, err := tr.app.Test(httptest.NewRequest("GET", "/api/sessions", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got struct {
		Count    int           `json:"count"`
		Sessions []SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, "lab", got.Sessions[0].ID)

	resp, err = tr.app.Test(httptest.NewRequest("GET", "/ws/bridge", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.FrameTimeout = 0
	assert.Error(t, cfg.Validate())

	_, err := New(cfg, telemetry.NewSynthetic(nil), nil)
	assert.Error(t, err)
}
