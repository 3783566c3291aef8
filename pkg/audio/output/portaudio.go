//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Blocking-mode PortAudio stream fed in fixed-size periods
package output

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

const portAudioPeriodFrames = 512

// PortAudio output implementation
type PortAudio struct {
	stream     *portaudio.Stream
	buffer     []int16
	pending    []int16
	sampleRate int
	channels   int
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Output {
	return &PortAudio{}
}

// Open initializes PortAudio with a blocking output stream
func (p *PortAudio) Open(sampleRate, channels int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	p.buffer = make([]int16, portAudioPeriodFrames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), portAudioPeriodFrames, &p.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	p.stream = stream
	p.sampleRate = sampleRate
	p.channels = channels
	return stream.Start()
}

// Write outputs audio samples one period at a time. Samples that do not
// fill a whole period are carried into the next call.
func (p *PortAudio) Write(samples []int32) error {
	if p.stream == nil {
		return ErrNotOpen
	}

	for _, sample := range samples {
		p.pending = append(p.pending, audio.SampleToInt16(sample))
	}

	for len(p.pending) >= len(p.buffer) {
		copy(p.buffer, p.pending)
		p.pending = p.pending[len(p.buffer):]
		if err := p.stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				return ErrUnderrun
			}
			return err
		}
	}
	return nil
}

// Delay converts the stream's output latency to frames
func (p *PortAudio) Delay() int {
	if p.stream == nil {
		return 0
	}
	latency := p.stream.Info().OutputLatency
	return int(latency.Seconds()*float64(p.sampleRate)) + len(p.pending)/p.channels
}

// Reset drops carried samples and restarts the stream
func (p *PortAudio) Reset() error {
	if p.stream == nil {
		return ErrNotOpen
	}
	p.pending = p.pending[:0]
	if err := p.stream.Abort(); err != nil {
		return err
	}
	return p.stream.Start()
}

// Close releases resources
func (p *PortAudio) Close() error {
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			return err
		}
		if err := p.stream.Close(); err != nil {
			return err
		}
		p.stream = nil
	}
	return portaudio.Terminate()
}
