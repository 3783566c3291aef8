// ABOUTME: Raw PCM source reading a named pipe or stdin
// ABOUTME: Blocking mode reads full packets, non-blocking mode pads with silence
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/rs/zerolog"
)

// fifoReadWindow bounds how long a non-blocking read waits for data
const fifoReadWindow = 2 * time.Millisecond

// ParseParams parses raw input parameters in the form
// rate:bits:channels:swap, for example 44100:16:2:0. swap is 0 or 1 and
// requests a byte-order swap of every sample.
func ParseParams(params string) (audio.Format, bool, error) {
	parts := strings.Split(params, ":")
	if len(parts) != 4 {
		return audio.Format{}, false, fmt.Errorf("bad audio params %q: want rate:bits:channels:swap", params)
	}

	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return audio.Format{}, false, fmt.Errorf("bad audio params %q: %w", params, err)
		}
		vals[i] = v
	}
	if vals[3] != 0 && vals[3] != 1 {
		return audio.Format{}, false, fmt.Errorf("bad audio params %q: swap must be 0 or 1", params)
	}

	format := audio.Format{SampleRate: vals[0], BitDepth: vals[1], Channels: vals[2]}
	if err := format.Validate(); err != nil {
		return audio.Format{}, false, fmt.Errorf("bad audio params %q: %w", params, err)
	}
	return format, vals[3] == 1, nil
}

// FIFO reads raw interleaved PCM from a named pipe, or stdin for "-"
type FIFO struct {
	path     string
	format   audio.Format
	swap     bool
	blocking bool
	log      *zerolog.Logger

	file      *os.File
	deadlines bool
	padded    uint64
}

// NewFIFO creates a raw source; the pipe is opened by Open
func NewFIFO(path string, format audio.Format, swap, blocking bool) *FIFO {
	return &FIFO{
		path:     path,
		format:   format,
		swap:     swap,
		blocking: blocking,
		log:      logging.Component("source.fifo"),
	}
}

func (s *FIFO) Open() error {
	if s.path == "-" {
		s.file = os.Stdin
	} else {
		f, err := os.OpenFile(s.path, fifoOpenFlags(s.blocking), 0)
		if err != nil {
			return fmt.Errorf("failed to open fifo: %w", err)
		}
		s.file = f
	}

	if !s.blocking {
		// pipes opened non-blocking support deadlines; terminals and
		// regular files do not
		s.deadlines = s.file.SetReadDeadline(time.Time{}) == nil
		if !s.deadlines {
			s.log.Warn().Str("path", s.path).Msg("read deadlines unsupported, reads will block")
		}
	}

	s.log.Info().
		Str("path", s.path).
		Stringer("format", s.format).
		Bool("swap", s.swap).
		Bool("blocking", s.blocking).
		Msg("opened raw input")
	return nil
}

func (s *FIFO) ReadChunk(n int) ([]byte, error) {
	n -= n % s.format.BytesPerFrame()
	buf := make([]byte, n)

	if s.blocking || !s.deadlines {
		got, err := io.ReadFull(s.file, buf)
		if err != nil {
			if got > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
				got -= got % s.format.BytesPerFrame()
				buf = buf[:got]
			} else if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			} else {
				return nil, fmt.Errorf("fifo read: %w", err)
			}
		}
	} else {
		if err := s.readAvailable(buf); err != nil {
			return nil, err
		}
	}

	if s.swap {
		audio.SwapBytes(buf, s.format.BitDepth)
	}
	return buf, nil
}

// readAvailable fills buf with whatever arrives inside the read window and
// leaves the rest zeroed.
func (s *FIFO) readAvailable(buf []byte) error {
	if err := s.file.SetReadDeadline(time.Now().Add(fifoReadWindow)); err != nil {
		return fmt.Errorf("fifo deadline: %w", err)
	}

	got := 0
	for got < len(buf) {
		c, err := s.file.Read(buf[got:])
		got += c
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) {
			break
		}
		return fmt.Errorf("fifo read: %w", err)
	}

	if got < len(buf) {
		// keep frames aligned: a partial trailing frame becomes silence too
		got -= got % s.format.BytesPerFrame()
		clear(buf[got:])
		s.padded += uint64(len(buf) - got)
		if s.padded == uint64(len(buf)-got) {
			s.log.Debug().Int("missing", len(buf)-got).Msg("short read, padding with silence")
		}
	}
	return nil
}

func (s *FIFO) Format() audio.Format { return s.format }
func (s *FIFO) Blocking() bool       { return s.blocking }

// Rewind is a no-op on live input
func (s *FIFO) Rewind() error { return nil }

func (s *FIFO) Close() error {
	if s.file == nil || s.file == os.Stdin {
		return nil
	}
	return s.file.Close()
}
