// ABOUTME: FLAC file source backed by mewkiz/flac
// ABOUTME: Interleaves decoded frames into little-endian PCM packets
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/encode"
	"github.com/mewkiz/flac"
)

// FLAC decodes a FLAC file frame by frame
type FLAC struct {
	path string
	loop bool

	file   *os.File
	stream *flac.Stream
	format audio.Format

	// left shift taking odd bit depths to the container depth
	shift   int
	pending []byte
}

// NewFLAC creates a FLAC source; the file is opened by Open
func NewFLAC(path string, loop bool) *FLAC {
	return &FLAC{path: path, loop: loop}
}

func (s *FLAC) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode FLAC: %w", err)
	}

	bits := int(stream.Info.BitsPerSample)
	container := containerDepth(bits)
	s.file = f
	s.stream = stream
	s.shift = container - bits
	s.format = audio.Format{
		SampleRate: int(stream.Info.SampleRate),
		Channels:   int(stream.Info.NChannels),
		BitDepth:   container,
	}
	if err := s.format.Validate(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", s.path, err)
	}

	logging.Component("source.flac").Info().
		Str("path", s.path).
		Stringer("format", s.format).
		Int("source_bits", bits).
		Uint64("samples", stream.Info.NSamples).
		Msg("loaded FLAC")
	return nil
}

// containerDepth rounds a FLAC sample width up to a byte-aligned depth
func containerDepth(bits int) int {
	switch {
	case bits <= 8:
		return 8
	case bits <= 16:
		return 16
	case bits <= 24:
		return 24
	default:
		return 32
	}
}

func (s *FLAC) ReadChunk(n int) ([]byte, error) {
	wrapped := false
	for len(s.pending) < n {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
			}
			if !s.loop || wrapped {
				break
			}
			if err := s.restart(); err != nil {
				return nil, err
			}
			wrapped = true
			continue
		}

		width := s.format.BytesPerSample()
		channels := s.format.Channels
		block := int(frame.BlockSize)
		out := make([]byte, block*channels*width)
		off := 0
		for i := 0; i < block; i++ {
			for ch := 0; ch < channels; ch++ {
				off += encode.PutNative(out[off:], frame.Subframes[ch].Samples[i]<<s.shift, s.format.BitDepth)
			}
		}
		s.pending = append(s.pending, out...)
	}

	c := min(n, len(s.pending))
	c -= c % s.format.BytesPerFrame()
	if c == 0 {
		return nil, io.EOF
	}
	out := s.pending[:c:c]
	s.pending = s.pending[c:]
	return out, nil
}

func (s *FLAC) Format() audio.Format { return s.format }
func (s *FLAC) Blocking() bool       { return false }

func (s *FLAC) Rewind() error {
	s.pending = nil
	return s.restart()
}

func (s *FLAC) restart() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to restart FLAC stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLAC) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
