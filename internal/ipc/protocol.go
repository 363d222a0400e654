// Package ipc carries control requests from the snipit CLI to the running
// daemon over a Unix socket.
//
// Every message is a 16-byte header followed by a JSON payload:
//
//	magic(4) version(1) flags(1) type(2) request-id(4) length(4)
//
// All integers are big-endian.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x534E4950 // "SNIP"
)

// MaxPayload bounds a single message payload.
const MaxPayload = 1 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006
	MsgShutdownResp MessageType = 0x0007

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Engine control (0x02xx)
	MsgReload       MessageType = 0x0200
	MsgReloadResp   MessageType = 0x0201
	MsgSetSound     MessageType = 0x0202
	MsgSetSoundResp MessageType = 0x0203
	MsgReset        MessageType = 0x0204
	MsgResetResp    MessageType = 0x0205
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgError:
		return "error"
	case MsgShutdown:
		return "shutdown"
	case MsgShutdownResp:
		return "shutdown-resp"
	case MsgStatusRequest:
		return "status"
	case MsgStatusResponse:
		return "status-resp"
	case MsgReload:
		return "reload"
	case MsgReloadResp:
		return "reload-resp"
	case MsgSetSound:
		return "sound"
	case MsgSetSoundResp:
		return "sound-resp"
	case MsgReset:
		return "reset"
	case MsgResetResp:
		return "reset-resp"
	}
	return fmt.Sprintf("type-0x%04x", uint16(t))
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// FlagJSON marks a JSON payload. It is the only encoding.
const FlagJSON uint8 = 0x04

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the message to w in one call.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(m.Payload))
	if err := m.Header.Write(&buf); err != nil {
		return err
	}
	buf.Write(m.Payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrPermissionDenied = 4
	ErrInternalError    = 5
)

// StatusResponse contains daemon status
type StatusResponse struct {
	Version        string        `json:"version"`
	PID            int           `json:"pid"`
	StartedAt      time.Time     `json:"started_at"`
	Uptime         time.Duration `json:"uptime"`
	ConfigPath     string        `json:"config_path"`
	Backend        string        `json:"backend"`
	Snippets       int           `json:"snippets"`
	BufferLength   int           `json:"buffer_length"`
	Sound          bool          `json:"sound"`
	Firings        uint64        `json:"firings"`
	EmissionErrors uint64        `json:"emission_errors"`
	LookupRaces    uint64        `json:"lookup_races"`
	Health         string        `json:"health"`
	Problems       []string      `json:"problems,omitempty"`
}

// ReloadResponse reports the table loaded by a reload.
type ReloadResponse struct {
	Snippets int    `json:"snippets"`
	Warning  string `json:"warning,omitempty"`
}

// SoundRequest sets or toggles the sound flag.
type SoundRequest struct {
	Toggle bool `json:"toggle,omitempty"`
	On     bool `json:"on,omitempty"`
}

// SoundResponse reports the sound flag after a change.
type SoundResponse struct {
	Sound bool `json:"sound"`
}

// Encode marshals a payload.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals a payload. An empty payload leaves v untouched.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message with an encoded payload.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	if v == nil {
		return NewMessage(msgType, requestID, nil), nil
	}
	payload, err := Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return NewMessage(msgType, requestID, payload), nil
}
