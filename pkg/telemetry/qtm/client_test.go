package qtm

import (
	"bytes"
	"context"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

const paramsXML = `<?xml version="1.0"?>
<QTM_Parameters_Ver_1.23>
  <The_3D>
    <AxisUpwards>+Z</AxisUpwards>
    <Calibration_Time>2024-05-02 10:11:12</Calibration_Time>
    <Labels>3</Labels>
    <Label><Name>HEAD</Name><RGBColor>255</RGBColor></Label>
    <Label><Name>CAR_W</Name><RGBColor>65280</RGBColor></Label>
    <Label><Name>CAR_D</Name><RGBColor>16711680</RGBColor></Label>
  </The_3D>
</QTM_Parameters_Ver_1.23>`

// fakeServer speaks enough of the RT protocol to drive a Client.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	commands []string
	replies  map[string]packet
	denyCtl  bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{
		t:  t,
		ln: ln,
		replies: map[string]packet{
			"Version":       {typ: PacketCommand, body: commandBody("Version set to 1.23")},
			"TakeControl":   {typ: PacketCommand, body: commandBody("You are now master")},
			"QTMVersion":    {typ: PacketCommand, body: commandBody("QTM Version is 2023.3 (build 9000)")},
			"GetParameters": {typ: PacketXML, body: append([]byte(paramsXML), 0)},
			"Start":         {typ: PacketCommand, body: commandBody("Starting measurement")},
			"Stop":          {typ: PacketCommand, body: commandBody("Stopping measurement")},
			"SetQTMEvent":   {typ: PacketCommand, body: commandBody("Event set")},
		},
	}
	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	go s.serve()
	return s
}

func (s *fakeServer) config() telemetry.Config {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	cfg := telemetry.DefaultConfig()
	cfg.Host = host
	cfg.Port, _ = strconv.Atoi(port)
	cfg.CommandTimeout = time.Second
	cfg.DialTimeout = time.Second
	return cfg
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.send(PacketCommand, commandBody("QTM RT Interface connected")); err != nil {
		return
	}
	for {
		p, err := readPacket(conn)
		if err != nil {
			return
		}
		cmd := p.text()
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		verb, _, _ := strings.Cut(cmd, " ")
		reply, ok := s.replies[verb]
		if verb == "TakeControl" && s.denyCtl {
			reply, ok = packet{typ: PacketError, body: commandBody("Another client is master")}, true
		}
		s.mu.Unlock()

		if verb == "StreamFrames" {
			continue
		}
		if !ok {
			reply = packet{typ: PacketError, body: commandBody("Parse error")}
		}
		if err := s.send(reply.typ, reply.body); err != nil {
			return
		}
	}
}

func (s *fakeServer) send(typ PacketType, body []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return writePacket(conn, typ, body)
}

func (s *fakeServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func connect(t *testing.T, s *fakeServer) *Client {
	t.Helper()
	c := New(s.config(), nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, PacketCommand, commandBody("Version 1.23")))
	assert.Equal(t, 8+13, buf.Len())

	p, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, PacketCommand, p.typ)
	assert.Equal(t, "Version 1.23", p.text())
}

func TestReadPacket_RejectsBadSize(t *testing.T) {
	_, err := readPacket(bytes.NewReader([]byte{4, 0, 0, 0, 1, 0, 0, 0}))
	assert.ErrorIs(t, err, errShortPacket)

	_, err = readPacket(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 1, 0, 0, 0}))
	assert.ErrorIs(t, err, errPacketTooLong)
}

func TestParseData(t *testing.T) {
	nan := float32(math.NaN())
	want := &telemetry.Frame{
		Number:    42,
		Timestamp: 123456789,
		Points:    []telemetry.Point{{1, 2, 3}, {-250.5, 900, 0}, {nan, nan, nan}},
	}

	got, err := parseData(encodeData(want))
	require.NoError(t, err)
	assert.Equal(t, want.Number, got.Number)
	assert.Equal(t, want.Timestamp, got.Timestamp)
	require.Len(t, got.Points, 3)
	assert.Equal(t, want.Points[0], got.Points[0])
	assert.Equal(t, want.Points[1], got.Points[1])

	_, err = got.Marker3D(2)
	assert.ErrorIs(t, err, telemetry.ErrMarkerMissing)
}

func TestParseData_Truncated(t *testing.T) {
	body := encodeData(&telemetry.Frame{Number: 1, Points: []telemetry.Point{{1, 2, 3}}})
	_, err := parseData(body[:len(body)-4])
	assert.ErrorIs(t, err, errShortPacket)
}

func TestParseMarkers(t *testing.T) {
	markers, err := parseMarkers([]byte(paramsXML))
	require.NoError(t, err)
	assert.Equal(t, []telemetry.Marker{
		{Index: 0, Label: "HEAD"},
		{Index: 1, Label: "CAR_W"},
		{Index: 2, Label: "CAR_D"},
	}, markers)
}

func TestClient_ConnectNegotiates(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	assert.Equal(t, []string{"Version 1.23", "TakeControl"}, s.Commands())

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Contains(t, v, "2023.3")
}

func TestClient_ControlDeniedIsNotFatal(t *testing.T) {
	s := newFakeServer(t)
	s.mu.Lock()
	s.denyCtl = true
	s.mu.Unlock()
	c := connect(t, s)

	assert.Equal(t, []string{"Version 1.23", "TakeControl"}, s.Commands())
	_, err := c.Version(context.Background())
	assert.NoError(t, err)
}

func TestClient_Markers(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	markers, err := c.Markers(context.Background())
	require.NoError(t, err)
	assert.Len(t, markers, 3)
	assert.Equal(t, "CAR_D", markers[2].Label)
}

func TestClient_Commands(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)
	ctx := context.Background()

	require.NoError(t, c.StartCapture(ctx))
	require.NoError(t, c.SendEvent(ctx, telemetry.TagExperimentStart))
	require.NoError(t, c.StartStreaming(ctx))
	require.NoError(t, c.StopStreaming(ctx))
	require.NoError(t, c.StopCapture(ctx))

	require.Eventually(t, func() bool { return len(s.Commands()) == 7 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"Version 1.23",
		"TakeControl",
		"Start",
		"SetQTMEvent S",
		"StreamFrames AllFrames 3D",
		"StreamFrames Stop",
		"Stop",
	}, s.Commands())
}

func TestClient_ErrorPacketFailsCommand(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)
	s.mu.Lock()
	s.replies["SetQTMEvent"] = packet{typ: PacketError, body: commandBody("Event label too long")}
	s.mu.Unlock()

	err := c.SendEvent(context.Background(), telemetry.TagTrialEnd)
	assert.ErrorIs(t, err, telemetry.ErrCommandFailed)
}

func TestClient_ReceiveKeepsLatest(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	for n := uint32(1); n <= 3; n++ {
		require.NoError(t, s.send(PacketData, encodeData(&telemetry.Frame{
			Number: n,
			Points: []telemetry.Point{{float32(n), 0, 0}},
		})))
	}
	// a command round trip orders the data packets before it
	_, err := c.Version(context.Background())
	require.NoError(t, err)

	f, err := c.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), f.Number)

	_, err = c.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, telemetry.ErrTimeout)
}

func TestClient_ReceiveAfterServerCloses(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	s.mu.Lock()
	s.conn.Close()
	s.mu.Unlock()

	_, err := c.Receive(context.Background(), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, telemetry.ErrTimeout)
}

func TestClient_NotConnected(t *testing.T) {
	c := New(telemetry.DefaultConfig(), nil)
	_, err := c.Receive(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, telemetry.ErrNotConnected)

	require.NoError(t, c.Close())
	_, err = c.Markers(context.Background())
	assert.ErrorIs(t, err, telemetry.ErrClosed)
	assert.ErrorIs(t, c.Connect(context.Background()), telemetry.ErrClosed)
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "data", PacketData.String())
	assert.Equal(t, "packet(99)", PacketType(99).String())
}
