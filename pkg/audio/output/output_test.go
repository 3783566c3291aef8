// ABOUTME: Audio output interface tests
// ABOUTME: Verifies backend selection, the ring buffer and the null device clock
package output

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendsImplementOutput(t *testing.T) {
	var _ Output = (*PortAudio)(nil)
	var _ Output = (*Oto)(nil)
	var _ Output = (*Malgo)(nil)
	var _ Output = (*Null)(nil)
}

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		name     string
		expected Output
	}{
		{"", &Oto{}},
		{"oto", &Oto{}},
		{"malgo", &Malgo{}},
		{"portaudio", &PortAudio{}},
		{"null", &Null{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(tt.name)
			require.NoError(t, err)
			assert.IsType(t, tt.expected, out)
		})
	}

	_, err := New("jack")
	assert.Error(t, err)
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(4)

	assert.Equal(t, 4, rb.Write([]int32{1, 2, 3, 4, 5}))
	assert.Equal(t, 0, rb.Free())

	out := make([]int32, 3)
	assert.Equal(t, 3, rb.Read(out))
	assert.Equal(t, []int32{1, 2, 3}, out)

	assert.Equal(t, 2, rb.Write([]int32{6, 7}))
	out = make([]int32, 5)
	assert.Equal(t, 3, rb.Read(out))
	assert.Equal(t, []int32{4, 6, 7, 0, 0}, out, "underrun is zero-filled")

	rb.Write([]int32{1})
	rb.Clear()
	assert.Equal(t, 0, rb.Available())
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) sleep(d time.Duration)   { c.t = c.t.Add(d) }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestNull() (*Null, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	n := NewNull().(*Null)
	n.now = clock.now
	n.sleep = clock.sleep
	return n, clock
}

func TestNullPacesWrites(t *testing.T) {
	n, clock := newTestNull()
	require.NoError(t, n.Open(1000, 1))

	start := clock.t
	// 500ms of audio into a 100ms buffer must take about 400ms
	for i := 0; i < 5; i++ {
		require.NoError(t, n.Write(make([]int32, 100)))
	}
	assert.InDelta(t, 400, clock.t.Sub(start).Milliseconds(), 5)
	assert.InDelta(t, 100, n.Delay(), 5)
}

func TestNullReportsUnderrun(t *testing.T) {
	n, clock := newTestNull()
	require.NoError(t, n.Open(1000, 2))

	require.NoError(t, n.Write(make([]int32, 100)))
	assert.Equal(t, 50, n.Delay())

	clock.advance(200 * time.Millisecond)
	assert.Equal(t, 0, n.Delay())
	assert.ErrorIs(t, n.Write(make([]int32, 100)), ErrUnderrun)

	require.NoError(t, n.Write(make([]int32, 100)))
	require.NoError(t, n.Reset())
	assert.Equal(t, 0, n.Delay())
}

func TestWriteBeforeOpen(t *testing.T) {
	n, _ := newTestNull()
	assert.ErrorIs(t, n.Write([]int32{0}), ErrNotOpen)
}

type stingyWriter struct {
	accept int
	err    error
}

func (w *stingyWriter) Write(p []byte) (int, error) {
	return min(w.accept, len(p)), w.err
}

func TestWriteFullReportsShortWrites(t *testing.T) {
	assert.NoError(t, writeFull(&stingyWriter{accept: 8}, make([]byte, 8)))

	err := writeFull(&stingyWriter{accept: 3, err: io.ErrClosedPipe}, make([]byte, 8))
	assert.ErrorIs(t, err, ErrShortWrite)
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	err = writeFull(&stingyWriter{accept: 3}, make([]byte, 8))
	assert.ErrorIs(t, err, ErrShortWrite)

	err = writeFull(&stingyWriter{err: io.ErrClosedPipe}, make([]byte, 8))
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
	assert.False(t, errors.Is(err, ErrShortWrite))
}
