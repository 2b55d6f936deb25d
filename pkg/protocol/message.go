// Package protocol defines the JSON websocket messages exchanged with the
// capture bridge and the operator status socket.
//
// The bridge runs next to the capture server and relays its 3D frames and
// command replies; go-sonify sends commands and event tags back the same way.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Client → bridge messages
	TypeHello   MessageType = "hello"   // Session announcement
	TypeCommand MessageType = "command" // Capture server command

	// Bridge → client messages
	TypeFrame MessageType = "frame" // 3D data frame
	TypeReply MessageType = "reply" // Command reply

	// Server → operator messages
	TypeStatus MessageType = "status" // Experiment status

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Command names carried by TypeCommand.
const (
	CommandVersion      = "version"
	CommandMarkers      = "markers"
	CommandStreamStart  = "stream_start"
	CommandStreamStop   = "stream_stop"
	CommandCaptureStart = "capture_start"
	CommandCaptureStop  = "capture_stop"
	CommandEvent        = "event"
)

// Message is the base wrapper for all websocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Client → Bridge Message Types
// =============================================================================

// HelloData announces a session to the bridge
type HelloData struct {
	Session string `json:"session"`
	Client  string `json:"client"`
	Version string `json:"version,omitempty"`
}

// CommandData asks the bridge to run a capture server command
type CommandData struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Arg  string `json:"arg,omitempty"` // event tag for CommandEvent
}

// =============================================================================
// Bridge → Client Message Types
// =============================================================================

// FrameData contains one 3D frame. Occluded markers are sent as null and
// decode to NaN.
type FrameData struct {
	Number    uint32       `json:"frame"`
	Timestamp uint64       `json:"ts"` // Capture microseconds
	Points    []MarkerData `json:"points"`
}

// MarkerData is one marker position
type MarkerData struct {
	X *float32 `json:"x"`
	Y *float32 `json:"y"`
	Z *float32 `json:"z"`
}

// LabelData names one labeled marker
type LabelData struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// ReplyData answers a CommandData with the same ID
type ReplyData struct {
	ID      uint64      `json:"id"`
	OK      bool        `json:"ok"`
	Text    string      `json:"text,omitempty"`
	Markers []LabelData `json:"markers,omitempty"` // CommandMarkers only
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
