package protocol

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "command message",
			msgType: TypeCommand,
			data:    CommandData{ID: 1, Name: CommandEvent, Arg: "s"},
			wantErr: false,
		},
		{
			name:    "hello message",
			msgType: TypeHello,
			data:    HelloData{Session: "abc", Client: "go-sonify"},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unencodable data",
			msgType: TypeStatus,
			data:    func() {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	msg, err := NewCommandMessage(7, CommandEvent, "S")
	if err != nil {
		t.Fatalf("NewCommandMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeCommand {
		t.Errorf("type = %v, want %v", parsed.Type, TypeCommand)
	}

	cmd, err := parsed.GetCommandData()
	if err != nil {
		t.Fatalf("GetCommandData() error = %v", err)
	}
	if cmd.ID != 7 || cmd.Name != CommandEvent || cmd.Arg != "S" {
		t.Errorf("GetCommandData() = %+v", cmd)
	}
}

func TestFrameNaNIsNull(t *testing.T) {
	nan := float32(math.NaN())
	msg, err := NewFrameMessage(12, 3400, [][3]float32{{1, 2, 3}, {nan, nan, nan}})
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	var wire struct {
		Points []map[string]*float32 `json:"points"`
	}
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.Points[1]["x"] != nil {
		t.Errorf("occluded marker should encode as null, got %v", *wire.Points[1]["x"])
	}

	frame, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	pos := frame.Positions()
	if pos[0] != [3]float32{1, 2, 3} {
		t.Errorf("Positions()[0] = %v", pos[0])
	}
	if !math.IsNaN(float64(pos[1][0])) {
		t.Errorf("Positions()[1] = %v, want NaN", pos[1])
	}
	if frame.Number != 12 || frame.Timestamp != 3400 {
		t.Errorf("frame header = %d/%d", frame.Number, frame.Timestamp)
	}
}

func TestParseMessageInvalid(t *testing.T) {
	if _, err := ParseMessage([]byte("{not json")); err == nil {
		t.Error("ParseMessage() should fail on invalid JSON")
	}
}

func TestParseDataNil(t *testing.T) {
	msg := &Message{Type: TypePing}
	var v PingData
	if err := msg.ParseData(&v); err != nil {
		t.Errorf("ParseData() on empty data error = %v", err)
	}
}

func TestPongLatency(t *testing.T) {
	msg, err := NewPongMessage("p1", 1000, 1042)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pong.LatencyMs != 42 {
		t.Errorf("LatencyMs = %d, want 42", pong.LatencyMs)
	}
}
