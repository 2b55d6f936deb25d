// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-sonify/pkg/protocol"
)

// Message is a pre-encoded text frame broadcast to clients.
type Message struct {
	Data []byte
}

// NewMessage wraps pre-encoded bytes.
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// FromProtocol encodes a protocol message for broadcast.
func FromProtocol(m *protocol.Message) (Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(data), nil
}
