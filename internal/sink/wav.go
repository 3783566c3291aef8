// ABOUTME: Canonical 44-byte RIFF/WAVE header for the HTTP stream
// ABOUTME: Declares a fixed data size so players treat the stream as a long file
package sink

import (
	"encoding/binary"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

const (
	// WAVHeaderSize is the length of the header written at stream offset 0
	WAVHeaderSize = 44

	// StreamDataBytes is the data chunk size advertised to clients
	StreamDataBytes = 2_000_000_000

	// StreamTotalBytes is the advertised length of the whole stream
	StreamTotalBytes = StreamDataBytes + WAVHeaderSize
)

// WAVHeader builds a PCM WAVE header for format with a dataBytes data chunk
func WAVHeader(format audio.Format, dataBytes uint32) []byte {
	h := make([]byte, WAVHeaderSize)
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], dataBytes+WAVHeaderSize-8)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], 1) // PCM
	le.PutUint16(h[22:24], uint16(format.Channels))
	le.PutUint32(h[24:28], uint32(format.SampleRate))
	le.PutUint32(h[28:32], uint32(format.SampleRate*format.BytesPerFrame()))
	le.PutUint16(h[32:34], uint16(format.BytesPerFrame()))
	le.PutUint16(h[34:36], uint16(format.BitDepth))

	copy(h[36:40], "data")
	le.PutUint32(h[40:44], dataBytes)
	return h
}
