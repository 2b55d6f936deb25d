package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sonify/pkg/protocol"
)

type fakeController struct {
	mu      sync.Mutex
	phase   string
	presses int
	err     error
}

func (f *fakeController) Snapshot() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"phase": f.phase, "presses": f.presses}
}

func (f *fakeController) Continue() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.presses++
	return nil
}

func newTestServer(ctrl Controller) *Server {
	return NewServer(DefaultConfig(), ctrl, nil)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(&fakeController{phase: "break"})

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "break", decode(t, resp)["phase"])
}

func TestHandleContinue(t *testing.T) {
	ctrl := &fakeController{phase: "awaiting_operator"}
	s := newTestServer(ctrl)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodPost, "/api/continue", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decode(t, resp)["presses"])

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/api/continue", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 1, ctrl.presses)
}

func TestHandleContinue_Rejected(t *testing.T) {
	s := newTestServer(&fakeController{err: errors.New("experiment finished")})

	resp, err := s.app.Test(httptest.NewRequest(http.MethodPost, "/api/continue", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "experiment finished", decode(t, resp)["error"])
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(&fakeController{})

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusWS_RequiresUpgrade(t *testing.T) {
	s := newTestServer(&fakeController{})

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/ws/status", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func readStatus(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeStatus, msg.Type)

	var status map[string]any
	require.NoError(t, msg.ParseData(&status))
	return status
}

func TestStatusWS_Stream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestServer(&fakeController{phase: "awaiting_operator"})
	go s.Serve(ctx, ln)
	defer s.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/status", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "awaiting_operator", readStatus(t, conn)["phase"])

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Publish(map[string]any{"phase": "trial_running"})
	assert.Equal(t, "trial_running", readStatus(t, conn)["phase"])
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{}.Validate(), "disabled server needs no address")
	assert.Error(t, Config{Enabled: true}.Validate())
}
