// ABOUTME: Stream sink that serves queued PCM to pulling HTTP clients
// ABOUTME: Keeps a tiny drop-oldest buffer and emits a WAV header at offset 0
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/metrics"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/queue"
	"github.com/rs/zerolog"
)

// DefaultStreamBuffer is the secondary buffer depth. A slow client skips
// audio rather than stalling the pipeline.
const DefaultStreamBuffer = 2

// ErrUnsupportedSeek is returned for offsets the live stream cannot serve
var ErrUnsupportedSeek = errors.New("unsupported stream offset")

// StreamSink moves messages from the input queue into a small buffer that
// HTTP sessions read from. Concurrent sessions share the buffer, so each
// byte goes to whichever session asks first.
type StreamSink struct {
	log *zerolog.Logger

	in *MessageQueue

	mu      sync.Mutex
	cond    *sync.Cond
	buf     *queue.Queue[*audio.Message]
	stopped bool

	// session that last consumed buffered bytes
	last *Session

	sessions atomic.Int32

	stopOnce sync.Once
}

// NewStreamSink creates a stream sink whose buffer holds depth messages
func NewStreamSink(depth int) *StreamSink {
	if depth < 1 {
		depth = DefaultStreamBuffer
	}
	s := &StreamSink{
		log: logging.Component("sink.stream"),
	}
	s.cond = sync.NewCond(&s.mu)
	s.buf = queue.New[*audio.Message](depth, queue.WithEvict(s.evicted))
	return s
}

// Start launches the forwarder on q
func (s *StreamSink) Start(q *MessageQueue) error {
	if s.in != nil {
		return errors.New("stream sink already started")
	}
	s.in = q
	q.Start(1, s.forward)
	return nil
}

// Stop terminates the input queue and wakes every blocked session
func (s *StreamSink) Stop() {
	s.stopOnce.Do(func() {
		if s.in != nil {
			s.in.SetTerminateAndWait()
		}
		s.shutdown()
	})
}

// Sessions returns the number of open sessions
func (s *StreamSink) Sessions() int {
	return int(s.sessions.Load())
}

// Buffered returns the number of messages waiting for a session
func (s *StreamSink) Buffered() int {
	return s.buf.Len()
}

func (s *StreamSink) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for _, m := range s.buf.Drain() {
		m.Release()
	}
	s.buf.Close()
	s.cond.Broadcast()
}

// evicted runs with s.mu held, from inside the forwarder's forced put.
// A frame torn by eviction is owed only by the session that read its head.
func (s *StreamSink) evicted(m *audio.Message) {
	if m.Cursor > 0 && !m.IsFlush() && s.last != nil {
		if torn := m.Cursor % m.BytesPerFrame(); torn != 0 {
			s.last.pad = m.BytesPerFrame() - torn
		}
	}
	m.Release()
	metrics.StreamDropsTotal.Inc()
	s.log.Debug().Msg("client too slow, discarding buffer")
}

func (s *StreamSink) forward(ctx context.Context) {
	defer s.shutdown()

	for {
		msg, remaining, ok := s.in.Take()
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(remaining))
		if msg.IsFlush() {
			continue
		}

		s.mu.Lock()
		if !s.buf.Put(msg, true) {
			msg.Release()
		}
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// waitFront blocks until a message is buffered. Caller holds s.mu.
func (s *StreamSink) waitFront(ctx context.Context) (*audio.Message, error) {
	for {
		if s.stopped {
			return nil, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m, ok := s.buf.Peek(); ok {
			return m, nil
		}
		s.cond.Wait()
	}
}

// Session is one HTTP client's read position in the stream
type Session struct {
	ID string

	sink *StreamSink
	ctx  context.Context
	stop func() bool

	base int64
	next int64

	// header bytes not yet delivered
	header []byte

	// zero bytes owed to finish a frame torn by eviction, guarded by sink.mu
	pad int

	closeOnce sync.Once
}

// NewSession opens a read position starting at absolute offset base. Only
// the stream start and the first data byte can be served; any other base
// before the end fails with ErrUnsupportedSeek.
func (s *StreamSink) NewSession(ctx context.Context, id string, base int64) (*Session, error) {
	if base < 0 || (base != 0 && base != WAVHeaderSize && base < StreamTotalBytes) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSeek, base)
	}

	se := &Session{
		ID:   id,
		sink: s,
		ctx:  ctx,
		base: base,
		next: base,
	}
	se.stop = context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})

	s.sessions.Add(1)
	metrics.StreamSessions.Inc()
	s.log.Info().Str("session", id).Int64("offset", base).Msg("session opened")
	return se, nil
}

// Length returns the number of bytes the session will deliver
func (se *Session) Length() int64 {
	return max(StreamTotalBytes-se.base, 0)
}

// Close releases the session
func (se *Session) Close() error {
	se.closeOnce.Do(func() {
		se.stop()
		se.sink.mu.Lock()
		if se.sink.last == se {
			se.sink.last = nil
		}
		se.sink.mu.Unlock()
		se.sink.sessions.Add(-1)
		metrics.StreamSessions.Dec()
		se.sink.log.Info().Str("session", se.ID).Int64("served", se.next-se.base).Msg("session closed")
	})
	return nil
}

// Read implements io.Reader using the session's context
func (se *Session) Read(p []byte) (int, error) {
	return se.FillBytes(se.ctx, se.next-se.base, p)
}

// FillBytes copies stream bytes at pos (relative to the session base) into
// buf, blocking until buf is full or the stream ends. The bytes at absolute
// offsets below 44 are the WAV header. Reads must be sequential.
func (se *Session) FillBytes(ctx context.Context, pos int64, buf []byte) (int, error) {
	abs := se.base + pos
	if abs >= StreamTotalBytes {
		return 0, io.EOF
	}
	if abs != se.next {
		return 0, fmt.Errorf("%w: read at %d, stream is at %d", ErrUnsupportedSeek, abs, se.next)
	}
	if rest := StreamTotalBytes - abs; int64(len(buf)) > rest {
		buf = buf[:rest]
	}
	if len(buf) == 0 {
		return 0, nil
	}

	s := se.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	// the header is generated once, from the first buffered message
	if abs < WAVHeaderSize && se.header == nil {
		front, err := s.waitFront(ctx)
		if err != nil {
			return 0, err
		}
		se.header = WAVHeader(front.Format, StreamDataBytes)[abs:]
		s.log.Debug().Str("session", se.ID).Stringer("format", front.Format).Msg("sending header")
	}
	if len(se.header) > 0 {
		c := copy(buf, se.header)
		se.header = se.header[c:]
		n += c
	}

	// a client that read the header and restarted at the first data byte
	// gets frame-aligned audio
	realign := abs == WAVHeaderSize

	for n < len(buf) {
		if se.pad > 0 {
			c := min(se.pad, len(buf)-n)
			clear(buf[n : n+c])
			se.pad -= c
			n += c
			continue
		}

		front, err := s.waitFront(ctx)
		if err != nil {
			se.next += int64(n)
			return n, err
		}

		if realign {
			if front.Cursor != 0 {
				front.Cursor = front.Len()
			}
			realign = false
		}

		c := copy(buf[n:], front.Remaining())
		n += c
		s.last = se
		if front.Advance(c) {
			front.Release()
			s.buf.Take()
		}
	}

	se.next += int64(n)
	metrics.StreamBytesTotal.Add(float64(n))
	return n, nil
}
