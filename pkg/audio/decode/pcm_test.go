// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests 8/16/24/32-bit little-endian PCM decoding
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	for _, depth := range []int{8, 16, 24, 32} {
		decoder, err := NewPCM(audio.Format{SampleRate: 48000, Channels: 2, BitDepth: depth})
		if err != nil {
			t.Fatalf("bit depth %d: failed to create decoder: %v", depth, err)
		}
		if decoder == nil {
			t.Fatalf("bit depth %d: expected decoder to be created", depth)
		}
	}
}

func TestNewPCM_UnsupportedBitDepth(t *testing.T) {
	decoder, err := NewPCM(audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 20})
	if err == nil {
		t.Fatal("expected error for unsupported bit depth, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for unsupported bit depth")
	}

	expectedError := "unsupported bit depth: 20 (supported: 8, 16, 24, 32)"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestPCMDecode(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
		input    []byte
		expected []int32
	}{
		// 0x0100 = 256 (16-bit) -> 256<<8 (24-bit)
		{"16bit", 16, []byte{0x00, 0x01, 0x02, 0x03}, []int32{256 << 8, 770 << 8}},
		{"16bit negative", 16, []byte{0xFF, 0xFF}, []int32{-1 << 8}},
		{"24bit", 24, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}, []int32{0x020100, 0x050403}},
		{"8bit unsigned", 8, []byte{128, 255, 0}, []int32{0, 127 << 16, -128 << 16}},
		{"32bit", 32, []byte{0x00, 0x00, 0x00, 0x40}, []int32{0x400000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder, err := NewPCM(audio.Format{SampleRate: 48000, Channels: 1, BitDepth: tt.bitDepth})
			if err != nil {
				t.Fatalf("failed to create decoder: %v", err)
			}

			output, err := decoder.Decode(tt.input)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if len(output) != len(tt.expected) {
				t.Fatalf("expected %d samples, got %d", len(tt.expected), len(output))
			}
			for i := range output {
				if output[i] != tt.expected[i] {
					t.Errorf("sample %d: expected %d, got %d", i, tt.expected[i], output[i])
				}
			}
		})
	}
}

func TestPCMDecode_PartialSample(t *testing.T) {
	decoder, _ := NewPCM(audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 24})

	if _, err := decoder.Decode([]byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error for trailing partial sample")
	}
}

func TestPCMDecode_EmptyInput(t *testing.T) {
	decoder, err := NewPCM(audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	output, err := decoder.Decode([]byte{})
	if err != nil {
		t.Fatalf("decode failed with empty input: %v", err)
	}
	if len(output) != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", len(output))
	}
}
