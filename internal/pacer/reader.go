// ABOUTME: Paced source reader that hands audio downstream at playback speed
// ABOUTME: Drives a non-pacing source through a timer or blocking strategy
package pacer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/rs/zerolog"
)

// Source is an audio source without intrinsic pacing
type Source interface {
	Open() error

	// ReadChunk returns up to n bytes of little-endian PCM, or io.EOF
	// once the source is exhausted
	ReadChunk(n int) ([]byte, error)

	Format() audio.Format

	// Blocking reports whether reads already block at the playback rate
	Blocking() bool

	Rewind() error
	Close() error
}

// PacketHandler receives each packet. Returning an error finishes the reader.
type PacketHandler func(packet []byte) error

// State is the reader's lifecycle phase
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Reader
type Options struct {
	// Speed is the playback speed percentage, 75 to 150
	Speed int

	// Period is the nominal packet spacing
	Period time.Duration

	// Strategy overrides the choice made from Source.Blocking
	Strategy Strategy

	Clock Clock
}

// Reader pulls packets from a Source and hands them to a PacketHandler in
// real time
type Reader struct {
	src     Source
	handler PacketHandler
	opts    Options
	log     *zerolog.Logger

	strategy Strategy
	pacing   *Pacing

	mu       sync.Mutex
	state    State
	resume   chan struct{}
	restart  bool
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
	packets  uint64
}

// NewReader creates a reader for src
func NewReader(src Source, handler PacketHandler, opts Options) *Reader {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	opts.Speed = ClampSpeed(opts.Speed)
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	return &Reader{
		src:     src,
		handler: handler,
		opts:    opts,
		log:     logging.Component("pacer"),
		done:    make(chan struct{}),
	}
}

// Start opens the source and launches the read loop
func (r *Reader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateStopped {
		return errors.New("reader already started")
	}
	if err := r.src.Open(); err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}

	format := r.src.Format()
	if err := format.Validate(); err != nil {
		r.src.Close()
		return fmt.Errorf("source format: %w", err)
	}

	r.strategy = r.opts.Strategy
	if r.strategy == nil {
		if r.src.Blocking() {
			r.strategy = BlockingStrategy{}
		} else {
			r.strategy = TimerStrategy{Clock: r.opts.Clock}
		}
	}
	r.pacing = NewPacing(format, r.opts.Speed, r.opts.Period)

	r.log.Info().
		Stringer("format", format).
		Int("packet_bytes", r.pacing.PacketBytes).
		Dur("ideal", r.pacing.Ideal()).
		Int("speed", r.opts.Speed).
		Bool("paced", r.strategy.Paced()).
		Msg("reader starting")

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.state = StateRunning
	go r.run(ctx)
	return nil
}

// PacketBytes returns the packet size in use, zero before Start
func (r *Reader) PacketBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pacing == nil {
		return 0
	}
	return r.pacing.PacketBytes
}

// Pause holds the reader before its next packet
func (r *Reader) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		r.state = StatePaused
		r.resume = make(chan struct{})
		r.log.Debug().Msg("paused")
	}
}

// Resume continues a paused reader
func (r *Reader) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StatePaused {
		r.state = StateRunning
		close(r.resume)
		r.resume = nil
		r.log.Debug().Msg("resumed")
	}
}

// Restart rewinds the source before the next packet
func (r *Reader) Restart() {
	r.mu.Lock()
	r.restart = true
	r.mu.Unlock()
}

// Stop ends the loop and waits for it to finish
func (r *Reader) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	started := r.state != StateStopped
	r.mu.Unlock()

	if !started {
		r.finish(nil)
		return
	}
	cancel()
	<-r.done
}

// Done is closed exactly once when the reader finishes
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that ended the reader, nil after a clean end
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns the current lifecycle phase
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Packets returns the number of packets handed downstream
func (r *Reader) Packets() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

func (r *Reader) finish(err error) {
	r.doneOnce.Do(func() {
		r.mu.Lock()
		r.state = StateFinished
		r.err = err
		r.mu.Unlock()
		close(r.done)
	})
}

// hold blocks while paused and reports whether a restart is pending
func (r *Reader) hold(ctx context.Context) (paused, restart bool, err error) {
	r.mu.Lock()
	ch := r.resume
	r.mu.Unlock()

	if ch != nil {
		paused = true
		select {
		case <-ch:
		case <-ctx.Done():
			return paused, false, ctx.Err()
		}
	}

	r.mu.Lock()
	restart = r.restart
	r.restart = false
	r.mu.Unlock()
	return paused, restart, nil
}

func (r *Reader) run(ctx context.Context) {
	var runErr error
	defer func() {
		if err := r.src.Close(); err != nil {
			r.log.Warn().Err(err).Msg("closing source")
		}
		r.log.Info().Uint64("packets", r.Packets()).Err(runErr).Msg("reader finished")
		r.finish(runErr)
	}()

	var next time.Duration
	for {
		if err := r.strategy.Wait(ctx, next); err != nil {
			return
		}

		paused, restart, err := r.hold(ctx)
		if err != nil {
			return
		}
		if paused {
			r.pacing.Pause()
		}
		if restart {
			if err := r.src.Rewind(); err != nil {
				runErr = fmt.Errorf("rewind: %w", err)
				return
			}
			r.pacing.Pause()
		}

		pkt, err := r.src.ReadChunk(r.pacing.PacketBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			runErr = fmt.Errorf("read: %w", err)
			return
		}
		if len(pkt) == 0 {
			return
		}

		if err := r.handler(pkt); err != nil {
			runErr = fmt.Errorf("send: %w", err)
			return
		}
		r.mu.Lock()
		r.packets++
		r.mu.Unlock()

		if r.strategy.Paced() {
			next = r.pacing.Next(r.opts.Clock.Now())
		}
		if errors.Is(err, io.EOF) {
			return
		}
	}
}
