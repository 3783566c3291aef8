// ABOUTME: Device sink that plays queued PCM through a local output
// ABOUTME: Converter and writer stages with warm-up and drift-corrected resampling
package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/metrics"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/decode"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/output"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/resample"
	"github.com/Resonate-Protocol/pcmrelay/pkg/queue"
	"github.com/rs/zerolog"
)

// State is the device sink's playback phase
type State int32

const (
	StateUninitialized State = iota
	StateWarmingUp
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWarmingUp:
		return "warming-up"
	case StateSteady:
		return "steady"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	// DefaultOutputQueueSize is the capacity of the converted-block queue
	DefaultOutputQueueSize = 100
)

// ErrChannelMismatch is logged when a message changes channel count mid-stream
var ErrChannelMismatch = errors.New("channel count differs from open device")

// DeviceConfig configures a DeviceSink
type DeviceConfig struct {
	Output output.Output

	// OutputQueueSize bounds converted blocks awaiting the writer
	OutputQueueSize int

	// TargetDepth is the occupancy the drift controller aims for and the
	// fill level that ends warm-up. Defaults to half of OutputQueueSize.
	TargetDepth int

	Quality resample.Quality
}

// DeviceSink decodes messages, resamples them to track the device clock and
// feeds the output from a second goroutine.
type DeviceSink struct {
	cfg DeviceConfig
	out output.Output
	log *zerolog.Logger

	in   *MessageQueue
	devq *queue.Queue[[]int32]

	state     atomic.Int32
	ratio     atomic.Uint64
	underruns atomic.Uint64

	// converter-goroutine state
	format   audio.Format
	decoders map[int]decode.Decoder
	conv     resample.Converter
	drift    *DriftController

	// device frames in the first converted block
	blockFrames int

	errMu sync.Mutex
	err   error

	done     chan struct{}
	stopOnce sync.Once
}

// NewDeviceSink creates a device sink; the output opens on the first message
func NewDeviceSink(cfg DeviceConfig) *DeviceSink {
	if cfg.OutputQueueSize < 1 {
		cfg.OutputQueueSize = DefaultOutputQueueSize
	}
	if cfg.TargetDepth < 1 || cfg.TargetDepth > cfg.OutputQueueSize {
		cfg.TargetDepth = max(cfg.OutputQueueSize/2, 1)
	}

	d := &DeviceSink{
		cfg:      cfg,
		out:      cfg.Output,
		log:      logging.Component("sink.device"),
		devq:     queue.New[[]int32](cfg.OutputQueueSize),
		decoders: make(map[int]decode.Decoder),
		drift:    NewDriftController(float64(cfg.TargetDepth), DriftWindow),
		done:     make(chan struct{}),
	}
	d.setRatio(1.0)
	return d
}

// Start launches the converter on q
func (d *DeviceSink) Start(q *MessageQueue) error {
	if d.out == nil {
		return fmt.Errorf("device sink: %w", output.ErrNotOpen)
	}
	if d.in != nil {
		return errors.New("device sink already started")
	}
	d.in = q
	q.Start(1, d.convertLoop)
	return nil
}

// Stop terminates the input queue, waits for both stages and closes the
// output. Safe to call more than once.
func (d *DeviceSink) Stop() {
	d.stopOnce.Do(func() {
		// release a converter blocked on a full output queue
		d.devq.Close()
		if d.in != nil {
			d.in.SetTerminateAndWait()
		}
		d.devq.SetTerminateAndWait()
		if err := d.out.Close(); err != nil {
			d.log.Warn().Err(err).Msg("closing output")
		}
	})
}

// Done is closed when the converter exits
func (d *DeviceSink) Done() <-chan struct{} {
	return d.done
}

// Err returns the fatal error that stopped the sink, if any
func (d *DeviceSink) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// State returns the current playback phase
func (d *DeviceSink) State() State {
	return State(d.state.Load())
}

// Ratio returns the last ratio applied to converted audio
func (d *DeviceSink) Ratio() float64 {
	return math.Float64frombits(d.ratio.Load())
}

// Underruns returns the number of failed device writes
func (d *DeviceSink) Underruns() uint64 {
	return d.underruns.Load()
}

// QueueDepth returns the number of converted blocks awaiting the writer
func (d *DeviceSink) QueueDepth() int {
	return d.devq.Len()
}

// ResetWarmup makes the writer rebuffer to the target depth before its
// next write. Used when the upstream sender reconnects.
func (d *DeviceSink) ResetWarmup() {
	if d.state.CompareAndSwap(int32(StateSteady), int32(StateWarmingUp)) {
		metrics.DeviceState.Set(float64(StateWarmingUp))
		d.log.Debug().Msg("warm-up reset by upstream")
	}
}

func (d *DeviceSink) setState(s State) {
	d.state.Store(int32(s))
	metrics.DeviceState.Set(float64(s))
}

func (d *DeviceSink) setRatio(r float64) {
	d.ratio.Store(math.Float64bits(r))
	metrics.DriftRatio.Set(r)
}

func (d *DeviceSink) fail(err error) {
	d.errMu.Lock()
	d.err = err
	d.errMu.Unlock()
	d.log.Error().Err(err).Msg("device sink stopped")
}

// convertLoop is the input queue's worker
func (d *DeviceSink) convertLoop(ctx context.Context) {
	defer close(d.done)
	defer d.devq.SetTerminateAndWait()

	wasSteady := false
	for {
		msg, remaining, ok := d.in.Take()
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(remaining))
		if msg.IsFlush() {
			continue
		}

		if d.State() == StateUninitialized {
			if err := d.open(msg.Format); err != nil {
				msg.Release()
				d.fail(err)
				// unblock the producer
				d.in.Close()
				return
			}
		}

		block, err := d.convert(msg, &wasSteady)
		msg.Release()
		if err != nil {
			d.log.Warn().Err(err).Msg("dropping message")
			continue
		}
		if len(block) == 0 {
			continue
		}

		if !d.devq.Put(block, false) {
			return
		}
		metrics.DeviceQueueDepth.Set(float64(d.devq.Len()))

		if ctx.Err() != nil {
			return
		}
	}
}

// open initializes the output from the first message's format and starts
// the writer.
func (d *DeviceSink) open(format audio.Format) error {
	if err := d.out.Open(format.SampleRate, format.Channels); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	d.format = format
	d.conv = resample.NewConverter(d.cfg.Quality, format.Channels)
	d.setState(StateWarmingUp)

	d.log.Info().
		Stringer("format", format).
		Int("queue", d.cfg.OutputQueueSize).
		Int("target", d.cfg.TargetDepth).
		Stringer("quality", d.cfg.Quality).
		Msg("output opened")

	d.devq.Start(1, d.writeLoop)
	return nil
}

func (d *DeviceSink) decoder(bitDepth int) (decode.Decoder, error) {
	if dec, ok := d.decoders[bitDepth]; ok {
		return dec, nil
	}
	dec, err := decode.NewPCM(audio.Format{BitDepth: bitDepth})
	if err != nil {
		return nil, err
	}
	d.decoders[bitDepth] = dec
	return dec, nil
}

// convert decodes msg and applies the warm-up or drift-controlled ratio.
// Rate changes after open are absorbed by the converter.
func (d *DeviceSink) convert(msg *audio.Message, wasSteady *bool) ([]int32, error) {
	if msg.Channels != d.format.Channels {
		return nil, fmt.Errorf("%w: got %d, device has %d", ErrChannelMismatch, msg.Channels, d.format.Channels)
	}

	dec, err := d.decoder(msg.BitDepth)
	if err != nil {
		return nil, err
	}
	samples, err := dec.Decode(msg.Data)
	if err != nil {
		return nil, err
	}

	base := float64(d.format.SampleRate) / float64(msg.SampleRate)

	if d.State() != StateSteady {
		*wasSteady = false
		d.setRatio(1.0)
		if base != 1.0 {
			samples = d.conv.Process(samples, base)
		}
		d.noteBlock(samples)
		return samples, nil
	}

	if !*wasSteady {
		d.conv.Reset()
		d.drift.Reset()
		*wasSteady = true
	}

	occupancy := float64(d.devq.Len())
	if d.blockFrames > 0 {
		occupancy += float64(d.out.Delay()) / float64(d.blockFrames)
	}
	r := d.drift.Update(occupancy)
	d.setRatio(r)

	out := d.conv.Process(samples, r*base)
	d.noteBlock(out)
	return out, nil
}

// noteBlock fixes the device latency unit from the first non-empty block
func (d *DeviceSink) noteBlock(block []int32) {
	if d.blockFrames == 0 && d.format.Channels > 0 {
		d.blockFrames = len(block) / d.format.Channels
	}
}

// writeLoop is the output queue's worker
func (d *DeviceSink) writeLoop(ctx context.Context) {
	for {
		if d.State() != StateSteady {
			if !d.devq.WaitMinSize(d.cfg.TargetDepth) {
				return
			}
			d.setState(StateSteady)
			d.log.Debug().Int("depth", d.devq.Len()).Msg("warm-up complete")
		}

		block, remaining, ok := d.devq.Take()
		if !ok || ctx.Err() != nil {
			return
		}
		metrics.DeviceQueueDepth.Set(float64(remaining))

		if err := d.out.Write(block); err != nil {
			d.underruns.Add(1)
			metrics.DeviceUnderrunsTotal.Inc()
			d.log.Warn().Err(err).Uint64("underruns", d.underruns.Load()).Msg("device write failed, rebuffering")

			if rerr := d.out.Reset(); rerr != nil {
				d.log.Warn().Err(rerr).Msg("output reset failed")
			}
			d.setState(StateWarmingUp)
			d.setRatio(1.0)
		}
	}
}
