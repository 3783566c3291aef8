// ABOUTME: Relay pipeline owning the input queue and the selected sink
// ABOUTME: Bridges receiver and local-source producers to device or stream playback
package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/pcmrelay/internal/config"
	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/metrics"
	"github.com/Resonate-Protocol/pcmrelay/internal/pacer"
	"github.com/Resonate-Protocol/pcmrelay/internal/receiver"
	"github.com/Resonate-Protocol/pcmrelay/internal/sink"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/output"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/resample"
	"github.com/Resonate-Protocol/pcmrelay/pkg/queue"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by producers once the pipeline is shut down
var ErrClosed = errors.New("pipeline closed")

// Status is a point-in-time view of the pipeline
type Status struct {
	Sink        string          `json:"sink"`
	State       string          `json:"state"`
	QueueDepth  int             `json:"queue_depth"`
	QueueCap    int             `json:"queue_capacity"`
	DeviceDepth int             `json:"device_depth,omitempty"`
	Ratio       float64         `json:"ratio,omitempty"`
	Underruns   uint64          `json:"underruns,omitempty"`
	Sessions    int             `json:"sessions,omitempty"`
	Buffered    int             `json:"buffered,omitempty"`
	Evictions   uint64          `json:"evictions"`
	Receiver    receiver.Status `json:"receiver"`
	Format      string          `json:"format,omitempty"`
}

// Pipeline owns the queue between producers and one sink
type Pipeline struct {
	log *zerolog.Logger

	queue *sink.MessageQueue
	sink  sink.Sink
	kind  string

	mu        sync.Mutex
	format    audio.Format
	evictions uint64
	receiver  func() receiver.Status

	closeOnce sync.Once
}

// New wraps s with a queue of the given capacity
func New(kind string, s sink.Sink, capacity int) *Pipeline {
	p := &Pipeline{
		log:  logging.Component("relay"),
		sink: s,
		kind: kind,
	}
	p.queue = queue.New[*audio.Message](capacity, queue.WithEvict(p.evicted))
	return p
}

// NewFromConfig builds the sink named by cfg.Sink.Kind
func NewFromConfig(cfg *config.Config) (*Pipeline, error) {
	var s sink.Sink
	switch cfg.Sink.Kind {
	case config.SinkStream:
		s = sink.NewStreamSink(cfg.Sink.StreamBuffer)
	case config.SinkDevice:
		out, err := output.New(cfg.Sink.Output)
		if err != nil {
			return nil, err
		}
		quality, err := resample.ParseQuality(cfg.Sink.Quality)
		if err != nil {
			return nil, err
		}
		s = sink.NewDeviceSink(sink.DeviceConfig{
			Output:          out,
			OutputQueueSize: cfg.Sink.OutputQueueSize,
			TargetDepth:     cfg.Sink.Target,
			Quality:         quality,
		})
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
	return New(cfg.Sink.Kind, s, cfg.Queue.Capacity), nil
}

// Start launches the sink's workers
func (p *Pipeline) Start() error {
	if err := p.sink.Start(p.queue); err != nil {
		return fmt.Errorf("failed to start %s sink: %w", p.kind, err)
	}
	p.log.Info().Str("sink", p.kind).Int("queue", p.queue.Cap()).Msg("Pipeline started")
	return nil
}

// Sink returns the selected sink
func (p *Pipeline) Sink() sink.Sink {
	return p.sink
}

// Stream returns the stream sink, or nil when playing to a device
func (p *Pipeline) Stream() *sink.StreamSink {
	s, _ := p.sink.(*sink.StreamSink)
	return s
}

// AttachReceiver makes receiver state part of Status
func (p *Pipeline) AttachReceiver(status func() receiver.Status) {
	p.mu.Lock()
	p.receiver = status
	p.mu.Unlock()
}

// Push hands msg to the queue, dropping the oldest entry when full.
// The pipeline owns msg afterwards.
func (p *Pipeline) Push(msg *audio.Message) error {
	if !p.queue.Put(msg, true) {
		msg.Release()
		return ErrClosed
	}
	metrics.QueueDepth.Set(float64(p.queue.Len()))
	return nil
}

func (p *Pipeline) evicted(msg *audio.Message) {
	msg.Release()
	metrics.QueueEvictionsTotal.Inc()

	p.mu.Lock()
	p.evictions++
	p.mu.Unlock()
}

// Feed returns a packet handler that pushes paced local audio in format
func (p *Pipeline) Feed(format audio.Format) pacer.PacketHandler {
	p.setFormat(format)
	frame := format.BytesPerFrame()

	return func(pkt []byte) error {
		n := len(pkt) - len(pkt)%frame
		if n == 0 {
			return nil
		}
		data := make([]byte, n)
		copy(data, pkt)

		msg, err := audio.NewMessage(format, data)
		if err != nil {
			return err
		}
		return p.Push(msg)
	}
}

// Connected implements receiver.Listener
func (p *Pipeline) Connected(remote string) {
	p.log.Info().Str("remote", remote).Msg("Upstream connected")
	p.resetWarmup()
}

// Playing implements receiver.Listener
func (p *Pipeline) Playing(format audio.Format) {
	p.log.Info().Stringer("format", format).Msg("Upstream playing")
	p.setFormat(format)
}

// Audio implements receiver.Listener
func (p *Pipeline) Audio(msg *audio.Message) {
	if err := p.Push(msg); err != nil {
		p.log.Debug().Err(err).Msg("Dropping audio")
	}
}

// Disconnected implements receiver.Listener
func (p *Pipeline) Disconnected(remote string) {
	p.log.Info().Str("remote", remote).Msg("Upstream disconnected")
	p.resetWarmup()
}

func (p *Pipeline) resetWarmup() {
	if r, ok := p.sink.(sink.WarmupResetter); ok {
		r.ResetWarmup()
	}
}

func (p *Pipeline) setFormat(format audio.Format) {
	p.mu.Lock()
	p.format = format
	p.mu.Unlock()
}

// Status returns a snapshot for the UI and the status endpoint
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	st := Status{
		Sink:      p.kind,
		Evictions: p.evictions,
	}
	if p.format.SampleRate != 0 {
		st.Format = p.format.String()
	}
	recv := p.receiver
	p.mu.Unlock()

	st.QueueDepth = p.queue.Len()
	st.QueueCap = p.queue.Cap()
	if recv != nil {
		st.Receiver = recv()
	}

	switch s := p.sink.(type) {
	case *sink.DeviceSink:
		st.State = s.State().String()
		st.Ratio = s.Ratio()
		st.Underruns = s.Underruns()
		st.DeviceDepth = s.QueueDepth()
	case *sink.StreamSink:
		st.State = "streaming"
		st.Sessions = s.Sessions()
		st.Buffered = s.Buffered()
	}
	if p.queue.Closed() {
		st.State = "stopped"
	}
	return st
}

// Close stops the sink, which terminates the queue in its own order, then
// releases whatever was left queued.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.sink.Stop()
		p.queue.SetTerminateAndWait()
		for _, msg := range p.queue.Drain() {
			msg.Release()
		}
		p.log.Info().Msg("Pipeline stopped")
	})
}
