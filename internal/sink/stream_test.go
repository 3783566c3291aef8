// ABOUTME: Tests for the stream sink
// ABOUTME: Covers the WAV header, restart realignment, drops, seeks and shutdown
package sink

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startStream(t *testing.T) (*StreamSink, *MessageQueue) {
	t.Helper()
	s := NewStreamSink(DefaultStreamBuffer)
	q := newTestQueue(8)
	require.NoError(t, s.Start(q))
	t.Cleanup(s.Stop)
	return s, q
}

func waitBuffered(t *testing.T, s *StreamSink, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Buffered() == n }, time.Second, time.Millisecond)
}

func TestWAVHeaderDecodes(t *testing.T) {
	s, q := startStream(t)
	q.Put(filledMessage(t, 4, 0x11), false)

	se, err := s.NewSession(context.Background(), "a", 0)
	require.NoError(t, err)
	defer se.Close()

	buf := make([]byte, WAVHeaderSize+8)
	n, err := se.FillBytes(context.Background(), 0, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	dec := wav.NewDecoder(bytes.NewReader(buf))
	dec.ReadInfo()
	require.NoError(t, dec.Err())
	require.NoError(t, dec.FwdToPCM())
	assert.Equal(t, uint32(44100), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, int64(StreamDataBytes), dec.PCMLen())

	assert.Equal(t, bytes.Repeat([]byte{0x11}, 8), buf[WAVHeaderSize:])
	assert.Equal(t, int64(StreamTotalBytes), se.Length())
}

func TestHeaderSplitAcrossReads(t *testing.T) {
	s, q := startStream(t)
	q.Put(filledMessage(t, 4, 0x22), false)

	se, err := s.NewSession(context.Background(), "a", 0)
	require.NoError(t, err)
	defer se.Close()

	first := make([]byte, 10)
	_, err = io.ReadFull(se, first)
	require.NoError(t, err)

	rest := make([]byte, WAVHeaderSize-10+4)
	_, err = io.ReadFull(se, rest)
	require.NoError(t, err)

	header := append(first, rest[:WAVHeaderSize-10]...)
	assert.Equal(t, "RIFF", string(header[0:4]))
	assert.Equal(t, "data", string(header[36:40]))
	assert.Equal(t, []byte{0x22, 0x22, 0x22, 0x22}, rest[WAVHeaderSize-10:])
}

func TestRestartAtFirstDataByteRealigns(t *testing.T) {
	s, q := startStream(t)
	q.Put(filledMessage(t, 4, 0x01), false)
	q.Put(filledMessage(t, 4, 0x02), false)
	waitBuffered(t, s, 2)

	scout, err := s.NewSession(context.Background(), "scout", 0)
	require.NoError(t, err)
	buf := make([]byte, WAVHeaderSize+6)
	_, err = scout.FillBytes(context.Background(), 0, buf)
	require.NoError(t, err)
	scout.Close()

	// the scout left the first message with a partial frame consumed
	player, err := s.NewSession(context.Background(), "player", WAVHeaderSize)
	require.NoError(t, err)
	defer player.Close()

	data := make([]byte, 8)
	_, err = player.FillBytes(context.Background(), 0, data)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x02}, 8), data)
}

func TestRestartWithAlignedFrontKeepsData(t *testing.T) {
	s, q := startStream(t)
	q.Put(filledMessage(t, 4, 0x03), false)
	waitBuffered(t, s, 1)

	se, err := s.NewSession(context.Background(), "a", WAVHeaderSize)
	require.NoError(t, err)
	defer se.Close()

	data := make([]byte, 16)
	_, err = se.FillBytes(context.Background(), 0, data)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x03}, 16), data)
}

func TestSlowClientDropsOldest(t *testing.T) {
	s, q := startStream(t)
	for i := byte(1); i <= 5; i++ {
		q.Put(filledMessage(t, 1, i), false)
	}
	require.Eventually(t, func() bool { return q.Len() == 0 && s.Buffered() == 2 }, time.Second, time.Millisecond)

	se, err := s.NewSession(context.Background(), "a", WAVHeaderSize)
	require.NoError(t, err)
	defer se.Close()

	data := make([]byte, 8)
	_, err = se.FillBytes(context.Background(), 0, data)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 4, 4, 4, 5, 5, 5, 5}, data)
}

func TestTornFrameIsPadded(t *testing.T) {
	s, q := startStream(t)
	first := filledMessage(t, 2, 0x0a)
	q.Put(first, false)
	waitBuffered(t, s, 1)

	se, err := s.NewSession(context.Background(), "a", WAVHeaderSize)
	require.NoError(t, err)
	defer se.Close()

	_, err = se.FillBytes(context.Background(), 0, make([]byte, 2))
	require.NoError(t, err)

	second := filledMessage(t, 1, 0x0b)
	q.Put(second, false)
	q.Put(filledMessage(t, 1, 0x0c), false)
	require.Eventually(t, func() bool {
		front, ok := s.buf.Peek()
		return ok && front == second
	}, time.Second, time.Millisecond)

	data := make([]byte, 6)
	_, err = se.FillBytes(context.Background(), 2, data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0x0b, 0x0b, 0x0b, 0x0b}, data)
}

func TestTornFramePaddingStaysWithItsSession(t *testing.T) {
	s, q := startStream(t)
	first := filledMessage(t, 1, 0x0a)
	q.Put(first, false)
	waitBuffered(t, s, 1)

	scout, err := s.NewSession(context.Background(), "scout", WAVHeaderSize)
	require.NoError(t, err)
	_, err = scout.FillBytes(context.Background(), 0, make([]byte, 2))
	require.NoError(t, err)
	scout.Close()

	second := filledMessage(t, 1, 0x0b)
	q.Put(second, false)
	q.Put(filledMessage(t, 1, 0x0c), false)
	require.Eventually(t, func() bool {
		front, ok := s.buf.Peek()
		return ok && front == second
	}, time.Second, time.Millisecond)

	player, err := s.NewSession(context.Background(), "player", WAVHeaderSize)
	require.NoError(t, err)
	defer player.Close()

	data := make([]byte, 8)
	_, err = player.FillBytes(context.Background(), 0, data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0b, 0x0b, 0x0b, 0x0b, 0x0c, 0x0c, 0x0c, 0x0c}, data)
}

func TestSeekPolicy(t *testing.T) {
	s, _ := startStream(t)

	_, err := s.NewSession(context.Background(), "a", 1000)
	assert.ErrorIs(t, err, ErrUnsupportedSeek)

	_, err = s.NewSession(context.Background(), "a", -1)
	assert.ErrorIs(t, err, ErrUnsupportedSeek)

	se, err := s.NewSession(context.Background(), "a", 0)
	require.NoError(t, err)
	defer se.Close()

	_, err = se.FillBytes(context.Background(), 100, make([]byte, 4))
	assert.ErrorIs(t, err, ErrUnsupportedSeek)
}

func TestReadPastEndIsEOF(t *testing.T) {
	s, _ := startStream(t)

	se, err := s.NewSession(context.Background(), "a", StreamTotalBytes)
	require.NoError(t, err)
	defer se.Close()

	n, err := se.FillBytes(context.Background(), 0, make([]byte, 16))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(0), se.Length())
}

func TestCancelledReadReturns(t *testing.T) {
	s, _ := startStream(t)

	ctx, cancel := context.WithCancel(context.Background())
	se, err := s.NewSession(ctx, "a", WAVHeaderSize)
	require.NoError(t, err)
	defer se.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := se.Read(make([]byte, 8))
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("read was not interrupted by cancellation")
	}
}

func TestStopWakesReaders(t *testing.T) {
	s := NewStreamSink(DefaultStreamBuffer)
	q := newTestQueue(4)
	require.NoError(t, s.Start(q))

	se, err := s.NewSession(context.Background(), "a", 0)
	require.NoError(t, err)
	defer se.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := se.FillBytes(context.Background(), 0, make([]byte, 64))
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("read was not interrupted by stop")
	}
}

func TestZeroLengthMessagesAreDropped(t *testing.T) {
	s, q := startStream(t)

	flush := filledMessage(t, 0, 0)
	q.Put(flush, false)
	q.Put(filledMessage(t, 1, 0x07), false)
	waitBuffered(t, s, 1)

	front, ok := s.buf.Peek()
	require.True(t, ok)
	assert.False(t, front.IsFlush())
}
