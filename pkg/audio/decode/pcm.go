// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 8/16/24/32-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

// PCMDecoder decodes little-endian PCM audio
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Decode converts PCM bytes to int32 samples in the 24-bit range.
// 8-bit input is unsigned, as in WAV files.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	width := d.bitDepth / 8
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of the %d-byte sample size", len(data), width)
	}

	numSamples := len(data) / width
	samples := make([]int32, numSamples)

	switch d.bitDepth {
	case 8:
		for i := 0; i < numSamples; i++ {
			samples[i] = (int32(data[i]) - 128) << 16
		}
	case 16:
		for i := 0; i < numSamples; i++ {
			sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
			samples[i] = audio.SampleFromInt16(sample16)
		}
	case 24:
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
	case 32:
		for i := 0; i < numSamples; i++ {
			samples[i] = int32(binary.LittleEndian.Uint32(data[i*4:])) >> 8
		}
	}

	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
