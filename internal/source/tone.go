// ABOUTME: Test tone generator source
// ABOUTME: Produces a 440Hz sine wave, optionally limited in length
package source

import (
	"io"
	"math"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/encode"
)

const (
	DefaultToneFrequency = 440.0 // A4
	toneVolume           = 0.5
)

// DefaultToneFormat is 48kHz 16-bit stereo
var DefaultToneFormat = audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}

// Tone generates a sine wave
type Tone struct {
	Frequency float64

	// Frames limits the generated length; zero means endless
	Frames uint64

	format      audio.Format
	enc         encode.Encoder
	sampleIndex uint64
}

// NewTone creates a tone source at the default frequency
func NewTone(format audio.Format, frames uint64) *Tone {
	return &Tone{
		Frequency: DefaultToneFrequency,
		Frames:    frames,
		format:    format,
	}
}

func (s *Tone) Open() error {
	if s.format == (audio.Format{}) {
		s.format = DefaultToneFormat
	}
	if err := s.format.Validate(); err != nil {
		return err
	}
	enc, err := encode.NewPCM(s.format)
	if err != nil {
		return err
	}
	s.enc = enc
	return nil
}

func (s *Tone) ReadChunk(n int) ([]byte, error) {
	frames := uint64(n / s.format.BytesPerFrame())
	if s.Frames > 0 {
		if s.sampleIndex >= s.Frames {
			return nil, io.EOF
		}
		frames = min(frames, s.Frames-s.sampleIndex)
	}

	channels := s.format.Channels
	samples := make([]int32, int(frames)*channels)
	for i := uint64(0); i < frames; i++ {
		t := float64(s.sampleIndex+i) / float64(s.format.SampleRate)
		v := audio.SampleFromFloat(float32(math.Sin(2*math.Pi*s.Frequency*t) * toneVolume))
		for ch := 0; ch < channels; ch++ {
			samples[int(i)*channels+ch] = v
		}
	}
	s.sampleIndex += frames

	return s.enc.Encode(samples)
}

func (s *Tone) Format() audio.Format { return s.format }
func (s *Tone) Blocking() bool       { return false }

func (s *Tone) Rewind() error {
	s.sampleIndex = 0
	return nil
}

func (s *Tone) Close() error { return nil }
