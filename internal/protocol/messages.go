// ABOUTME: pcmrelay protocol message type definitions
// ABOUTME: JSON control messages exchanged between sender and receiver
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

// Version is the protocol revision carried in hello messages
const Version = 1

// Path is the websocket endpoint served by receivers
const Path = "/pcmrelay"

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeStreamStart = "stream/start"
	TypeStreamEnd   = "stream/end"
)

// CodecPCM is the only codec on the wire
const CodecPCM = "pcm"

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by the sender to open the session
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Software string `json:"software,omitempty"`
}

// ServerHello is the receiver's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// StreamStart announces the format of the binary frames that follow
type StreamStart struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamEnd tells the receiver no more frames follow
type StreamEnd struct {
	Reason string `json:"reason,omitempty"` // "eof", "shutdown", "error"
}

// NewStreamStart describes format
func NewStreamStart(format audio.Format) StreamStart {
	return StreamStart{
		Codec:      CodecPCM,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   format.BitDepth,
	}
}

// Format returns the announced format after validating it
func (s StreamStart) Format() (audio.Format, error) {
	if s.Codec != CodecPCM {
		return audio.Format{}, fmt.Errorf("unsupported codec %q", s.Codec)
	}
	f := audio.Format{SampleRate: s.SampleRate, Channels: s.Channels, BitDepth: s.BitDepth}
	if err := f.Validate(); err != nil {
		return audio.Format{}, err
	}
	return f, nil
}

// ParseMessage decodes a text frame's envelope
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("message has no type")
	}
	return msg, nil
}

// DecodePayload converts msg's generic payload into v
func DecodePayload(msg Message, v interface{}) error {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode %s payload: %w", msg.Type, err)
	}
	if err := json.Unmarshal(payloadBytes, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", msg.Type, err)
	}
	return nil
}
