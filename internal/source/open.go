// ABOUTME: Source selection by path and extension
// ABOUTME: Maps a command-line source argument to a pacer.Source
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/pcmrelay/internal/pacer"
)

// ErrUnsupported is returned for inputs no reader handles
var ErrUnsupported = errors.New("unsupported audio source")

// DefaultParams describe raw input when none are given
const DefaultParams = "44100:16:2:0"

// Options configures Open
type Options struct {
	// Params describes raw pipe input as rate:bits:channels:swap
	Params string

	// Loop restarts file sources at end of file
	Loop bool

	// Blocking reads raw pipe input with blocking reads
	Blocking bool

	// Rate converts the source to a fixed sample rate when non-zero
	Rate int
}

// Open chooses a reader for path:
//   - "tone" generates a test tone
//   - "-" reads raw PCM from stdin
//   - .wav, .mp3 and .flac files are decoded
//   - a path with no extension or .fifo must be a named pipe of raw PCM
func Open(path string, opts Options) (pacer.Source, error) {
	src, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	if opts.Rate > 0 {
		return NewResampled(src, opts.Rate), nil
	}
	return src, nil
}

func open(path string, opts Options) (pacer.Source, error) {
	if path == "" || path == "tone" {
		return NewTone(DefaultToneFormat, 0), nil
	}

	params := opts.Params
	if params == "" {
		params = DefaultParams
	}

	if path == "-" {
		format, swap, err := ParseParams(params)
		if err != nil {
			return nil, err
		}
		return NewFIFO(path, format, swap, true), nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return NewWAV(path, opts.Loop), nil
	case ".mp3":
		return NewMP3(path, opts.Loop), nil
	case ".flac":
		return NewFLAC(path, opts.Loop), nil
	case "", ".fifo":
		format, swap, err := ParseParams(params)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("audio source: %w", err)
		}
		if info.Mode()&os.ModeNamedPipe == 0 {
			return nil, fmt.Errorf("%w: %s is not a fifo", ErrUnsupported, path)
		}
		return NewFIFO(path, format, swap, opts.Blocking), nil
	default:
		return nil, fmt.Errorf("%w: extension %s (supported: .wav, .mp3, .flac, .fifo)", ErrUnsupported, ext)
	}
}
