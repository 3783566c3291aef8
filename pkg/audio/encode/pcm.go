// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 8/16/24/32-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Encode converts 24-bit range int32 samples to PCM bytes. Reducing to
// 16 or 8 bits truncates without dither.
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	width := e.bitDepth / 8
	output := make([]byte, len(samples)*width)

	switch e.bitDepth {
	case 8:
		for i, sample := range samples {
			output[i] = byte((sample >> 16) + 128)
		}
	case 16:
		for i, sample := range samples {
			binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(sample)))
		}
	case 24:
		for i, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			copy(output[i*3:], b[:])
		}
	case 32:
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(output[i*4:], uint32(sample<<8))
		}
	}

	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}

// PutNative writes one sample already expressed at bitDepth (for example a
// raw FLAC subframe value) to dst in little-endian order and returns the
// number of bytes written.
func PutNative(dst []byte, sample int32, bitDepth int) int {
	switch bitDepth {
	case 8:
		dst[0] = byte(sample + 128)
		return 1
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(sample)))
		return 2
	case 24:
		dst[0] = byte(sample)
		dst[1] = byte(sample >> 8)
		dst[2] = byte(sample >> 16)
		return 3
	default:
		binary.LittleEndian.PutUint32(dst, uint32(sample))
		return 4
	}
}
