package qtm

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// PacketType identifies the payload of an RT packet.
type PacketType uint32

// RT packet types.
const (
	PacketError      PacketType = 0
	PacketCommand    PacketType = 1
	PacketXML        PacketType = 2
	PacketData       PacketType = 3
	PacketNoMoreData PacketType = 4
	PacketC3DFile    PacketType = 5
	PacketEvent      PacketType = 6
	PacketDiscover   PacketType = 7
	PacketQTMFile    PacketType = 8
)

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case PacketError:
		return "error"
	case PacketCommand:
		return "command"
	case PacketXML:
		return "xml"
	case PacketData:
		return "data"
	case PacketNoMoreData:
		return "no_more_data"
	case PacketC3DFile:
		return "c3d_file"
	case PacketEvent:
		return "event"
	case PacketDiscover:
		return "discover"
	case PacketQTMFile:
		return "qtm_file"
	default:
		return fmt.Sprintf("packet(%d)", uint32(t))
	}
}

// component3D is the data component carrying labeled 3D markers.
const component3D uint32 = 1

const (
	headerSize      = 8
	maxPacketSize   = 16 << 20
	componentHeader = 8
	header3D        = 8
	markerSize      = 12
)

var (
	errShortPacket   = errors.New("short packet")
	errPacketTooLong = errors.New("packet exceeds size limit")
)

// packet is one framed RT message.
type packet struct {
	typ  PacketType
	body []byte
}

// text returns the body as a string with the NUL terminator removed.
func (p packet) text() string {
	return string(bytes.TrimRight(p.body, "\x00"))
}

// writePacket frames body with the little-endian size/type header.
func writePacket(w io.Writer, typ PacketType, body []byte) error {
	buf := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(typ))
	copy(buf[headerSize:], body)
	_, err := w.Write(buf)
	return err
}

// readPacket reads one framed packet.
func readPacket(r io.Reader) (packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return packet{}, err
	}
	size := binary.LittleEndian.Uint32(hdr[0:4])
	typ := PacketType(binary.LittleEndian.Uint32(hdr[4:8]))
	if size < headerSize {
		return packet{}, fmt.Errorf("%w: size %d", errShortPacket, size)
	}
	if size > maxPacketSize {
		return packet{}, fmt.Errorf("%w: %d bytes", errPacketTooLong, size)
	}
	body := make([]byte, size-headerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, err
	}
	return packet{typ: typ, body: body}, nil
}

// commandBody returns cmd as a NUL-terminated string.
func commandBody(cmd string) []byte {
	return append([]byte(cmd), 0)
}

// parseData decodes the 3D component of a data packet. Data packets without a
// 3D component yield a frame with no points.
func parseData(body []byte) (*telemetry.Frame, error) {
	if len(body) < 16 {
		return nil, fmt.Errorf("data packet: %w", errShortPacket)
	}
	frame := &telemetry.Frame{
		Timestamp: binary.LittleEndian.Uint64(body[0:8]),
		Number:    binary.LittleEndian.Uint32(body[8:12]),
	}
	count := binary.LittleEndian.Uint32(body[12:16])

	off := 16
	for j := uint32(0); j < count; j++ {
		if len(body)-off < componentHeader {
			return nil, fmt.Errorf("component header: %w", errShortPacket)
		}
		size := int(binary.LittleEndian.Uint32(body[off : off+4]))
		kind := binary.LittleEndian.Uint32(body[off+4 : off+8])
		if size < componentHeader || off+size > len(body) {
			return nil, fmt.Errorf("component size %d: %w", size, errShortPacket)
		}
		if kind == component3D {
			points, err := parse3D(body[off+componentHeader : off+size])
			if err != nil {
				return nil, err
			}
			frame.Points = points
		}
		off += size
	}
	return frame, nil
}

// parse3D decodes the marker list of a 3D component. The 2D drop and
// out-of-sync rates are skipped.
func parse3D(c []byte) ([]telemetry.Point, error) {
	if len(c) < header3D {
		return nil, fmt.Errorf("3d component: %w", errShortPacket)
	}
	n := int(binary.LittleEndian.Uint32(c[0:4]))
	c = c[header3D:]
	if len(c) < n*markerSize {
		return nil, fmt.Errorf("3d component with %d markers: %w", n, errShortPacket)
	}
	points := make([]telemetry.Point, n)
	for i := range points {
		m := c[i*markerSize:]
		for axis := 0; axis < 3; axis++ {
			points[i][axis] = math.Float32frombits(binary.LittleEndian.Uint32(m[axis*4:]))
		}
	}
	return points, nil
}

// encodeData builds a data packet body carrying one 3D component.
func encodeData(frame *telemetry.Frame) []byte {
	compSize := componentHeader + header3D + len(frame.Points)*markerSize
	body := make([]byte, 16+compSize)
	binary.LittleEndian.PutUint64(body[0:8], frame.Timestamp)
	binary.LittleEndian.PutUint32(body[8:12], frame.Number)
	binary.LittleEndian.PutUint32(body[12:16], 1)

	c := body[16:]
	binary.LittleEndian.PutUint32(c[0:4], uint32(compSize))
	binary.LittleEndian.PutUint32(c[4:8], component3D)
	binary.LittleEndian.PutUint32(c[8:12], uint32(len(frame.Points)))
	m := c[componentHeader+header3D:]
	for i, p := range frame.Points {
		for axis := 0; axis < 3; axis++ {
			binary.LittleEndian.PutUint32(m[i*markerSize+axis*4:], math.Float32bits(p[axis]))
		}
	}
	return body
}

// parameters3D is the subset of the GetParameters 3D document we use.
type parameters3D struct {
	Labels []struct {
		Name string `xml:"Name"`
	} `xml:"The_3D>Label"`
}

// parseMarkers extracts the labeled markers from a parameters document.
// Marker indices follow document order.
func parseMarkers(doc []byte) ([]telemetry.Marker, error) {
	var params parameters3D
	if err := xml.Unmarshal(bytes.TrimRight(doc, "\x00"), &params); err != nil {
		return nil, fmt.Errorf("parse 3d parameters: %w", err)
	}
	markers := make([]telemetry.Marker, len(params.Labels))
	for i, l := range params.Labels {
		markers[i] = telemetry.Marker{Index: i, Label: l.Name}
	}
	return markers, nil
}
