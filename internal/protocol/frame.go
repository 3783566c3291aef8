// ABOUTME: Binary audio frame codec
// ABOUTME: [type:1][sequence:8 big-endian][big-endian PCM payload]
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// AudioFrameType identifies binary audio frames
	AudioFrameType = 1

	// FrameHeaderSize is the type byte plus the sequence number
	FrameHeaderSize = 1 + 8
)

var (
	ErrShortFrame       = errors.New("binary frame shorter than header")
	ErrUnknownFrameType = errors.New("unknown binary frame type")
)

// EncodeAudioFrame builds a binary frame around payload
func EncodeAudioFrame(seq uint64, payload []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(payload))
	frame[0] = AudioFrameType
	binary.BigEndian.PutUint64(frame[1:FrameHeaderSize], seq)
	copy(frame[FrameHeaderSize:], payload)
	return frame
}

// DecodeAudioFrame splits a binary frame. The payload aliases data.
func DecodeAudioFrame(data []byte) (uint64, []byte, error) {
	if len(data) < FrameHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	if data[0] != AudioFrameType {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownFrameType, data[0])
	}
	seq := binary.BigEndian.Uint64(data[1:FrameHeaderSize])
	return seq, data[FrameHeaderSize:], nil
}
