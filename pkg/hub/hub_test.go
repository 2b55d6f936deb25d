package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sonify/pkg/protocol"
)

// fakeConn records text frames and blocks reads until closed.
type fakeConn struct {
	writes chan []byte

	mu          sync.Mutex
	closeFrames int

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writes: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("connection closed")
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	switch messageType {
	case websocket.TextMessage:
		f.writes <- data
	case websocket.CloseMessage:
		f.mu.Lock()
		f.closeFrames++
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) CloseFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeFrames
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func TestHub_Broadcast(t *testing.T) {
	h, _ := startHub(t)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		c := NewClient(h, conn)
		require.NotNil(t, c)
		go c.Run()
	}
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"phase": "break"}))

	for i, conn := range conns {
		select {
		case data := <-conn.writes:
			assert.JSONEq(t, `{"phase":"break"}`, string(data), "client %d", i)
		case <-time.After(time.Second):
			t.Fatalf("client %d got no message", i)
		}
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, _ := startHub(t)

	conn := newFakeConn()
	c := NewClient(h, conn)
	require.NotNil(t, c)
	go c.Run()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return conn.CloseFrames() == 1 }, time.Second, time.Millisecond)

	// Broadcasting with no clients is harmless
	require.NoError(t, h.BroadcastJSON("ignored"))
}

func TestHub_Stop(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	c := NewClient(h, conn)
	require.NotNil(t, c)
	go c.Run()

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.False(t, h.IsRunning())
	assert.Zero(t, h.ClientCount())
	require.Eventually(t, func() bool { return conn.CloseFrames() == 1 }, time.Second, time.Millisecond)

	assert.Nil(t, NewClient(h, newFakeConn()), "stopped hub refuses clients")
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test", nil)
	assert.Error(t, h.BroadcastJSON(func() {}))
}

func TestFromProtocol(t *testing.T) {
	m, err := protocol.NewStatusMessage(map[string]int{"trials_completed": 3})
	require.NoError(t, err)

	msg, err := FromProtocol(m)
	require.NoError(t, err)

	var decoded protocol.Message
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, protocol.TypeStatus, decoded.Type)
	assert.JSONEq(t, `{"trials_completed":3}`, string(decoded.Data))
}
