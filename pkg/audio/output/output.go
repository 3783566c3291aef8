// ABOUTME: Audio output interface definition
// ABOUTME: Common interface and backend selection for playback devices
package output

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotOpen is returned by Write before Open succeeds
	ErrNotOpen = errors.New("output not initialized")

	// ErrUnderrun reports that the device ran dry since the last write.
	// The block passed to that Write was dropped.
	ErrUnderrun = errors.New("output underrun")

	// ErrShortWrite reports that the device accepted only part of a block
	ErrShortWrite = errors.New("output short write")
)

// Output represents an audio output device. Every backend plays 16-bit
// little-endian interleaved PCM; Write takes 24-bit range int32 samples
// and narrows them without dither.
type Output interface {
	// Open initializes the output device
	Open(sampleRate, channels int) error

	// Write outputs audio samples (blocks until accepted)
	Write(samples []int32) error

	// Delay returns the number of frames queued but not yet played
	Delay() int

	// Reset drops queued audio and leaves the device ready to refill
	Reset() error

	// Close releases output resources
	Close() error
}

// New returns the named backend: oto, malgo, portaudio or null
func New(name string) (Output, error) {
	switch name {
	case "", "oto":
		return NewOto(), nil
	case "malgo":
		return NewMalgo(), nil
	case "portaudio":
		return NewPortAudio(), nil
	case "null":
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", name)
	}
}

// writeFull writes p to w. A write that stops partway through p is
// reported as ErrShortWrite alongside the writer's own error.
func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	switch {
	case err != nil && n > 0 && n < len(p):
		return fmt.Errorf("%w: %d of %d bytes: %w", ErrShortWrite, n, len(p), err)
	case err != nil:
		return err
	case n < len(p):
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return nil
}
