package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveTest(t *testing.T, ctrl Controller) (*Server, *Client) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := newTestServer(ctrl)
	go s.Serve(ctx, ln)
	t.Cleanup(func() {
		cancel()
		s.Shutdown()
	})

	return s, NewClient("http://"+ln.Addr().String()+"/", time.Second)
}

func TestClient_StatusAndContinue(t *testing.T) {
	ctrl := &fakeController{phase: "awaiting_operator"}
	_, c := serveTest(t, ctrl)
	ctx := context.Background()

	var status struct {
		Phase   string `json:"phase"`
		Presses int    `json:"presses"`
	}
	require.NoError(t, c.Status(ctx, &status))
	assert.Equal(t, "awaiting_operator", status.Phase)

	require.NoError(t, c.Continue(ctx, &status))
	assert.Equal(t, 1, status.Presses)
}

func TestClient_ContinueRejected(t *testing.T) {
	_, c := serveTest(t, &fakeController{err: errors.New("experiment finished")})

	err := c.Continue(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "experiment finished")
}

func TestClient_Watch(t *testing.T) {
	s, c := serveTest(t, &fakeController{phase: "break"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(raw json.RawMessage) {
			var st struct{ Phase string }
			if json.Unmarshal(raw, &st) == nil {
				updates <- st.Phase
			}
		})
	}()

	select {
	case phase := <-updates:
		assert.Equal(t, "break", phase)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial status")
	}

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Publish(map[string]any{"phase": "trial_running"})
	select {
	case phase := <-updates:
		assert.Equal(t, "trial_running", phase)
	case <-time.After(2 * time.Second):
		t.Fatal("no published status")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestClient_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient("http://"+addr, 200*time.Millisecond)
	assert.Error(t, c.Status(context.Background(), nil))
	assert.Error(t, c.Watch(context.Background(), func(json.RawMessage) {}))
}
