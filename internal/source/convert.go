// ABOUTME: Fixed-rate conversion wrapper for sources
// ABOUTME: Runs each channel through the oov/audio Speex resampler
package source

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/pacer"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/decode"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/encode"
	"github.com/oov/audio/resampler"
)

// ResampleQuality is the Speex quality level, 0 to 10
const ResampleQuality = 10

// Resampled converts another source to a fixed sample rate
type Resampled struct {
	pacer.Source
	rate int

	format audio.Format
	bypass bool
	r      *resampler.Resampler
	dec    decode.Decoder
	enc    encode.Encoder

	in, out [][]float32
}

// NewResampled wraps src so it produces rate Hz audio
func NewResampled(src pacer.Source, rate int) *Resampled {
	return &Resampled{Source: src, rate: rate}
}

func (s *Resampled) Open() error {
	if err := s.Source.Open(); err != nil {
		return err
	}

	in := s.Source.Format()
	s.format = in
	s.format.SampleRate = s.rate
	if err := s.format.Validate(); err != nil {
		return fmt.Errorf("resample target: %w", err)
	}
	if s.bypass = in.SampleRate == s.rate; s.bypass {
		return nil
	}

	dec, err := decode.NewPCM(in)
	if err != nil {
		return err
	}
	enc, err := encode.NewPCM(s.format)
	if err != nil {
		return err
	}
	s.dec, s.enc = dec, enc
	s.r = resampler.New(in.Channels, in.SampleRate, s.rate, ResampleQuality)
	s.in = make([][]float32, in.Channels)
	s.out = make([][]float32, in.Channels)

	logging.Component("source.resample").Info().
		Int("from", in.SampleRate).
		Int("to", s.rate).
		Int("quality", ResampleQuality).
		Msg("converting sample rate")
	return nil
}

// ReadChunk reads enough input for about n output bytes and converts it.
// The converter's startup latency can swallow a whole read, so it keeps
// reading until something comes out.
func (s *Resampled) ReadChunk(n int) ([]byte, error) {
	if s.bypass {
		return s.Source.ReadChunk(n)
	}
	for {
		out, err := s.convert(n)
		if len(out) > 0 || err != nil {
			return out, err
		}
	}
}

func (s *Resampled) convert(n int) ([]byte, error) {
	in := s.Source.Format()
	bpf := in.BytesPerFrame()
	want := max(n/s.format.BytesPerFrame()*in.SampleRate/s.rate, 1)

	raw, err := s.Source.ReadChunk(want * bpf)
	if len(raw) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	samples, derr := s.dec.Decode(raw)
	if derr != nil {
		return nil, derr
	}

	channels := in.Channels
	frames := len(samples) / channels
	outCap := frames*s.rate/in.SampleRate + 64
	for ch := 0; ch < channels; ch++ {
		if cap(s.in[ch]) < frames {
			s.in[ch] = make([]float32, frames)
		}
		if cap(s.out[ch]) < outCap {
			s.out[ch] = make([]float32, outCap)
		}
		s.in[ch] = s.in[ch][:frames]
		s.out[ch] = s.out[ch][:outCap]
		for i := 0; i < frames; i++ {
			s.in[ch][i] = audio.SampleToFloat(samples[i*channels+ch])
		}
	}

	written := outCap
	for ch := 0; ch < channels; ch++ {
		_, w := s.r.ProcessFloat32(ch, s.in[ch], s.out[ch])
		written = min(written, w)
	}

	converted := make([]int32, written*channels)
	for i := 0; i < written; i++ {
		for ch := 0; ch < channels; ch++ {
			converted[i*channels+ch] = audio.SampleFromFloat(s.out[ch][i])
		}
	}

	out, eerr := s.enc.Encode(converted)
	if eerr != nil {
		return nil, eerr
	}
	return out, err
}

func (s *Resampled) Format() audio.Format { return s.format }
