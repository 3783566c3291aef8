// ABOUTME: MP3 file source backed by go-mp3
// ABOUTME: Decodes to 16-bit stereo PCM and loops by seeking the decoder
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3 decodes an MP3 file on the fly
type MP3 struct {
	path string
	loop bool

	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
}

// NewMP3 creates an MP3 source; the file is opened by Open
func NewMP3(path string, loop bool) *MP3 {
	return &MP3{path: path, loop: loop}
}

func (s *MP3) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode MP3: %w", err)
	}

	s.file = f
	s.decoder = decoder
	// go-mp3 always produces 16-bit stereo
	s.format = audio.Format{SampleRate: decoder.SampleRate(), Channels: 2, BitDepth: 16}

	logging.Component("source.mp3").Info().
		Str("path", s.path).
		Stringer("format", s.format).
		Int64("bytes", decoder.Length()).
		Msg("loaded MP3")
	return nil
}

func (s *MP3) ReadChunk(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	wrapped := false

	for got < n {
		c, err := io.ReadFull(s.decoder, buf[got:])
		got += c
		if err == nil {
			break
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		if !s.loop || (wrapped && got == 0) {
			break
		}
		if err := s.Rewind(); err != nil {
			return nil, err
		}
		wrapped = true
	}

	got -= got % s.format.BytesPerFrame()
	if got == 0 {
		return nil, io.EOF
	}
	return buf[:got], nil
}

func (s *MP3) Format() audio.Format { return s.format }
func (s *MP3) Blocking() bool       { return false }

func (s *MP3) Rewind() error {
	if _, err := s.decoder.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	return nil
}

func (s *MP3) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
