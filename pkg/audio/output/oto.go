// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams 16-bit PCM through a persistent oto player fed by a pipe
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/encode"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoChans   int
	otoErr     error
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	encoder    encode.Encoder
	sampleRate int
	channels   int
	playing    bool
	ready      bool
}

// NewOto creates a new Oto output
func NewOto() Output {
	return &Oto{}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := logging.Component("output.oto")

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan
		otoContext, otoRate, otoChans = ctx, sampleRate, channels
	})
	if otoErr != nil {
		return otoErr
	}

	if otoRate != sampleRate || otoChans != channels {
		return fmt.Errorf("oto context is fixed at %dHz/%dch, cannot reopen at %dHz/%dch",
			otoRate, otoChans, sampleRate, channels)
	}

	encoder, err := encode.NewPCM(audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16})
	if err != nil {
		return err
	}

	o.encoder = encoder
	o.sampleRate = sampleRate
	o.channels = channels
	o.newPlayer()
	o.ready = true

	log.Info().Int("sample_rate", sampleRate).Int("channels", channels).Msg("audio output initialized")
	return nil
}

// newPlayer replaces the pipe and player. Caller holds o.mu.
func (o *Oto) newPlayer() {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
	}
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = otoContext.NewPlayer(o.pipeReader)
	o.playing = false
}

// Write outputs audio samples. It reports ErrUnderrun, dropping the block,
// when the player drained completely since the previous write.
func (o *Oto) Write(samples []int32) error {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return ErrNotOpen
	}
	if o.playing && o.player.BufferedSize() == 0 {
		o.mu.Unlock()
		return ErrUnderrun
	}
	if err := o.player.Err(); err != nil {
		o.mu.Unlock()
		return err
	}

	output, err := o.encoder.Encode(samples)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if !o.playing {
		o.player.Play()
		o.playing = true
	}
	w := o.pipeWriter
	o.mu.Unlock()

	// Blocks until the player has pulled the whole block
	if err := writeFull(w, output); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Delay reports frames buffered in the player
func (o *Oto) Delay() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready {
		return 0
	}
	return o.player.BufferedSize() / (2 * o.channels)
}

// Reset discards buffered audio and pauses until the next write
func (o *Oto) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready {
		return ErrNotOpen
	}
	o.player.Pause()
	o.newPlayer()
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Pause()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	o.ready = false
	return nil
}
