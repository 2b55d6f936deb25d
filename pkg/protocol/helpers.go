package protocol

import "math"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates a hello message
func NewHelloMessage(session, client, version string) (*Message, error) {
	return NewMessage(TypeHello, HelloData{
		Session: session,
		Client:  client,
		Version: version,
	})
}

// NewCommandMessage creates a command message
func NewCommandMessage(id uint64, name, arg string) (*Message, error) {
	return NewMessage(TypeCommand, CommandData{
		ID:   id,
		Name: name,
		Arg:  arg,
	})
}

// NewReplyMessage creates a command reply message
func NewReplyMessage(id uint64, ok bool, text string) (*Message, error) {
	return NewMessage(TypeReply, ReplyData{
		ID:   id,
		OK:   ok,
		Text: text,
	})
}

// NewFrameMessage creates a frame message. NaN coordinates are sent as null.
func NewFrameMessage(number uint32, ts uint64, points [][3]float32) (*Message, error) {
	data := FrameData{
		Number:    number,
		Timestamp: ts,
		Points:    make([]MarkerData, len(points)),
	}
	for i, p := range points {
		data.Points[i] = MarkerData{X: coord(p[0]), Y: coord(p[1]), Z: coord(p[2])}
	}
	return NewMessage(TypeFrame, data)
}

// NewStatusMessage creates a status message from any JSON-encodable status
func NewStatusMessage(status any) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

func coord(v float32) *float32 {
	if math.IsNaN(float64(v)) {
		return nil
	}
	return &v
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetCommandData extracts command data from a message
func (m *Message) GetCommandData() (*CommandData, error) {
	var data CommandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetReplyData extracts reply data from a message
func (m *Message) GetReplyData() (*ReplyData, error) {
	var data ReplyData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Positions returns the frame's marker positions with null coordinates as NaN
func (f *FrameData) Positions() [][3]float32 {
	out := make([][3]float32, len(f.Points))
	nan := float32(math.NaN())
	for i, p := range f.Points {
		out[i] = [3]float32{nan, nan, nan}
		if p.X != nil && p.Y != nil && p.Z != nil {
			out[i] = [3]float32{*p.X, *p.Y, *p.Z}
		}
	}
	return out
}
