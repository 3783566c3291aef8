// ABOUTME: WAV file source backed by go-audio/wav
// ABOUTME: Loads the whole PCM payload into memory and serves it in packets
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/encode"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WAV serves a PCM WAV file
type WAV struct {
	path string
	loop bool

	format audio.Format
	data   []byte
	pos    int
}

// NewWAV creates a WAV source; the file is read by Open
func NewWAV(path string, loop bool) *WAV {
	return &WAV{path: path, loop: loop}
}

func (s *WAV) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s: %w: not a readable WAV file (%v)", s.path, ErrUnsupported, dec.Err())
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return fmt.Errorf("%s: %w: WAV encoding %d is not linear PCM", s.path, ErrUnsupported, dec.WavAudioFormat)
	}

	format := audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("failed to decode WAV: %w", err)
	}

	width := format.BytesPerSample()
	data := make([]byte, len(buf.Data)*width)
	for i, v := range buf.Data {
		if format.BitDepth == 8 {
			// go-audio hands 8-bit WAV samples back unsigned
			data[i] = byte(v)
			continue
		}
		encode.PutNative(data[i*width:], int32(v), format.BitDepth)
	}
	data = data[:len(data)-len(data)%format.BytesPerFrame()]

	s.format = format
	s.data = data
	s.pos = 0

	logging.Component("source.wav").Info().
		Str("path", s.path).
		Stringer("format", format).
		Int("bytes", len(data)).
		Bool("loop", s.loop).
		Msg("loaded WAV")
	return nil
}

func (s *WAV) ReadChunk(n int) ([]byte, error) {
	return readBuffered(s.data, &s.pos, n, s.loop)
}

func (s *WAV) Format() audio.Format { return s.format }
func (s *WAV) Blocking() bool       { return false }

func (s *WAV) Rewind() error {
	s.pos = 0
	return nil
}

func (s *WAV) Close() error {
	s.data = nil
	return nil
}

// readBuffered copies up to n bytes of data from *pos, wrapping to the start
// when loop is set.
func readBuffered(data []byte, pos *int, n int, loop bool) ([]byte, error) {
	if len(data) == 0 {
		return nil, io.EOF
	}
	if *pos >= len(data) {
		if !loop {
			return nil, io.EOF
		}
		*pos = 0
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		c := min(n-len(out), len(data)-*pos)
		out = append(out, data[*pos:*pos+c]...)
		*pos += c
		if *pos == len(data) {
			if !loop {
				break
			}
			*pos = 0
		}
	}
	return out, nil
}
