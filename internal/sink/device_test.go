// ABOUTME: Tests for the device sink
// ABOUTME: Drives warm-up, steady state and write-failure recovery with a fake output
package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/resample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDeviceGone = errors.New("device gone")

type fakeOutput struct {
	mu       sync.Mutex
	rate     int
	channels int
	openErr  error
	writes   int
	failOn   map[int]bool
	resets   int
	closed   bool
	samples  int
	delay    int
	gate     chan struct{}
}

func (f *fakeOutput) Open(rate, channels int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.rate, f.channels = rate, channels
	return nil
}

func (f *fakeOutput) Write(samples []int32) error {
	f.mu.Lock()
	f.writes++
	fail := f.failOn[f.writes]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return errDeviceGone
	}
	f.mu.Lock()
	f.samples += len(samples)
	f.mu.Unlock()
	return nil
}

func (f *fakeOutput) Delay() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delay
}

func (f *fakeOutput) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeOutput) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func testMessage(t *testing.T) *audio.Message {
	t.Helper()
	msg, err := audio.NewMessage(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}, make([]byte, 441*4))
	require.NoError(t, err)
	return msg
}

func TestDeviceSinkWarmupThenSteady(t *testing.T) {
	out := &fakeOutput{}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out, OutputQueueSize: 4, TargetDepth: 2, Quality: resample.QualityLinear})
	require.NoError(t, d.Start(q))
	defer d.Stop()

	assert.Equal(t, StateUninitialized, d.State())

	require.True(t, q.Put(testMessage(t), false))
	assert.Eventually(t, func() bool { return d.State() == StateWarmingUp }, time.Second, time.Millisecond)
	out.mu.Lock()
	assert.Equal(t, 44100, out.rate)
	assert.Equal(t, 2, out.channels)
	out.mu.Unlock()

	// one block is below the target depth
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, out.Writes())

	require.True(t, q.Put(testMessage(t), false))
	assert.Eventually(t, func() bool { return out.Writes() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, StateSteady, d.State())
	assert.Equal(t, 1.0, d.Ratio())
}

func TestDeviceSinkRecoversFromWriteFailure(t *testing.T) {
	out := &fakeOutput{failOn: map[int]bool{2: true}}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out, OutputQueueSize: 4, TargetDepth: 2, Quality: resample.QualityLinear})
	require.NoError(t, d.Start(q))
	defer d.Stop()

	q.Put(testMessage(t), false)
	q.Put(testMessage(t), false)

	assert.Eventually(t, func() bool { return d.Underruns() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return d.State() == StateWarmingUp }, time.Second, time.Millisecond)
	assert.Equal(t, 1.0, d.Ratio())
	out.mu.Lock()
	assert.Equal(t, 1, out.resets)
	out.mu.Unlock()

	// back in warm-up: no writes until the target depth is reached again
	q.Put(testMessage(t), false)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, out.Writes())
	assert.Equal(t, StateWarmingUp, d.State())

	q.Put(testMessage(t), false)
	assert.Eventually(t, func() bool { return out.Writes() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, StateSteady, d.State())
	assert.Equal(t, uint64(1), d.Underruns())
	assert.NoError(t, d.Err())
}

func TestDeviceSinkSteadyStateRaisesRatioWhenStarved(t *testing.T) {
	out := &fakeOutput{}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out, OutputQueueSize: 4, TargetDepth: 2, Quality: resample.QualityLinear})
	require.NoError(t, d.Start(q))
	defer d.Stop()

	q.Put(testMessage(t), false)
	q.Put(testMessage(t), false)
	assert.Eventually(t, func() bool { return d.State() == StateSteady && d.QueueDepth() == 0 }, time.Second, time.Millisecond)

	// the writer keeps the output queue empty, so the controller speeds up
	q.Put(testMessage(t), false)
	assert.Eventually(t, func() bool { return d.Ratio() > 1.0 }, time.Second, time.Millisecond)
	assert.LessOrEqual(t, d.Ratio(), MaxRatio)
}

func TestDeviceSinkCountsDeviceLatency(t *testing.T) {
	gate := make(chan struct{})
	out := &fakeOutput{delay: 2 * 441, gate: gate}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out, OutputQueueSize: 10, TargetDepth: 2, Quality: resample.QualityLinear})
	require.NoError(t, d.Start(q))
	defer d.Stop()
	defer close(gate)

	q.Put(testMessage(t), false)
	q.Put(testMessage(t), false)

	// the writer holds one block in the device, one is still queued
	assert.Eventually(t, func() bool { return d.State() == StateSteady && out.Writes() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, d.QueueDepth())

	q.Put(testMessage(t), false)
	assert.Eventually(t, func() bool { return d.Ratio() != 1.0 }, time.Second, time.Millisecond)
	assert.InDelta(t, CandidateRatio(2, 1+2), d.Ratio(), 1e-9)
	assert.Less(t, d.Ratio(), 1.0)
}

func TestDeviceSinkOpenFailureStopsPipeline(t *testing.T) {
	out := &fakeOutput{openErr: errDeviceGone}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out})
	require.NoError(t, d.Start(q))
	defer d.Stop()

	q.Put(testMessage(t), false)

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("sink did not exit after open failure")
	}
	assert.ErrorIs(t, d.Err(), errDeviceGone)
	assert.False(t, q.Put(testMessage(t), false))
}

func TestDeviceSinkSkipsFlushMarkers(t *testing.T) {
	out := &fakeOutput{}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out, OutputQueueSize: 4, TargetDepth: 1})
	require.NoError(t, d.Start(q))
	defer d.Stop()

	flush, err := audio.NewMessage(audio.Format{}, nil)
	require.NoError(t, err)
	q.Put(flush, false)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateUninitialized, d.State())
}

func TestDeviceSinkStopClosesOutput(t *testing.T) {
	out := &fakeOutput{}
	q := newTestQueue(10)
	d := NewDeviceSink(DeviceConfig{Output: out, OutputQueueSize: 4, TargetDepth: 2})
	require.NoError(t, d.Start(q))

	q.Put(testMessage(t), false)
	d.Stop()
	d.Stop()

	assert.True(t, q.Closed())
	out.mu.Lock()
	defer out.mu.Unlock()
	assert.True(t, out.closed)
}
