// ABOUTME: Tests for the paced reader
// ABOUTME: Uses an in-memory source to check delivery, pacing, pause and restart
package pacer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	mu       sync.Mutex
	data     []byte
	pos      int
	format   audio.Format
	blocking bool
	opened   bool
	closed   bool
	rewinds  int
	openErr  error
}

func newMemSource(size int) *memSource {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &memSource{data: data, format: cdFormat}
}

func (s *memSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *memSource) ReadChunk(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.data) {
		return nil, io.EOF
	}
	end := min(s.pos+n, len(s.data))
	out := bytes.Clone(s.data[s.pos:end])
	s.pos = end
	return out, nil
}

func (s *memSource) Format() audio.Format { return s.format }
func (s *memSource) Blocking() bool       { return s.blocking }

func (s *memSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.rewinds++
	return nil
}

func (s *memSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type collector struct {
	mu      sync.Mutex
	packets [][]byte
	times   []time.Time
}

func (c *collector) handle(pkt []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, pkt)
	c.times = append(c.times, time.Now())
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func (c *collector) joined() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.packets, nil)
}

func waitDone(t *testing.T, r *Reader, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(timeout):
		t.Fatal("reader did not finish")
	}
}

func TestReaderDeliversWholeSourceInRealTime(t *testing.T) {
	src := newMemSource(1764 * 8)
	var c collector
	r := NewReader(src, c.handle, Options{})

	start := time.Now()
	require.NoError(t, r.Start())
	waitDone(t, r, 2*time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, src.data, c.joined())
	assert.Equal(t, 8, c.count())
	assert.Equal(t, uint64(8), r.Packets())
	assert.Equal(t, StateFinished, r.State())
	assert.NoError(t, r.Err())
	assert.True(t, src.closed)

	// seven paced gaps after the first packet
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestReaderBlockingStrategyDoesNotSleep(t *testing.T) {
	src := newMemSource(1764 * 200)
	src.blocking = true
	var c collector
	r := NewReader(src, c.handle, Options{})

	start := time.Now()
	require.NoError(t, r.Start())
	waitDone(t, r, time.Second)

	assert.Equal(t, 200, c.count())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReaderOpenFailure(t *testing.T) {
	src := newMemSource(16)
	src.openErr = errors.New("no such file")
	r := NewReader(src, func([]byte) error { return nil }, Options{})

	err := r.Start()
	assert.ErrorIs(t, err, src.openErr)
	assert.Equal(t, StateStopped, r.State())
}

func TestReaderHandlerErrorFinishes(t *testing.T) {
	src := newMemSource(1764 * 10)
	src.blocking = true
	sendErr := errors.New("connection lost")
	r := NewReader(src, func([]byte) error { return sendErr }, Options{})

	require.NoError(t, r.Start())
	waitDone(t, r, time.Second)
	assert.ErrorIs(t, r.Err(), sendErr)
}

func TestReaderPauseResume(t *testing.T) {
	src := newMemSource(1764 * 20)
	var c collector
	r := NewReader(src, c.handle, Options{})

	require.NoError(t, r.Start())
	assert.Eventually(t, func() bool { return c.count() >= 2 }, time.Second, time.Millisecond)

	r.Pause()
	assert.Equal(t, StatePaused, r.State())
	time.Sleep(30 * time.Millisecond)
	held := c.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, held, c.count())

	r.Resume()
	waitDone(t, r, 2*time.Second)
	assert.Equal(t, src.data, c.joined())
}

func TestReaderRestartRewinds(t *testing.T) {
	src := newMemSource(1764 * 4)
	var c collector
	r := NewReader(src, c.handle, Options{})

	require.NoError(t, r.Start())
	assert.Eventually(t, func() bool { return c.count() >= 1 }, time.Second, time.Millisecond)
	r.Restart()
	waitDone(t, r, 2*time.Second)

	src.mu.Lock()
	assert.Equal(t, 1, src.rewinds)
	src.mu.Unlock()
	assert.Greater(t, c.count(), 4)
}

func TestReaderStopIsPrompt(t *testing.T) {
	src := newMemSource(1764 * 1000)
	var c collector
	r := NewReader(src, c.handle, Options{})

	require.NoError(t, r.Start())
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	r.Stop()

	assert.Equal(t, StateFinished, r.State())
	assert.Less(t, c.count(), 1000)
}

func TestStopBeforeStartClosesDone(t *testing.T) {
	r := NewReader(newMemSource(16), func([]byte) error { return nil }, Options{})
	r.Stop()
	waitDone(t, r, time.Second)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func TestTimerStrategyUsesClock(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	src := newMemSource(1764 * 100)
	var c collector
	r := NewReader(src, c.handle, Options{Clock: clock})

	require.NoError(t, r.Start())
	waitDone(t, r, time.Second)

	assert.Equal(t, 100, c.count())
	// one interval per packet, the last one ending at EOF
	assert.Equal(t, time.Unix(0, 0).Add(100*10*time.Millisecond), clock.Now())
}

func TestTimerStrategyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := TimerStrategy{}.Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
