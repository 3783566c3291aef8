// ABOUTME: Clock-paced output that discards audio
// ABOUTME: Behaves like a device with a fixed hardware buffer for headless runs
package output

import (
	"sync"
	"time"
)

// Null consumes frames at the nominal sample rate without playing them.
// Writes block while more than BufferDuration of audio is queued, and a
// write arriving after the queue ran dry reports ErrUnderrun.
type Null struct {
	mu sync.Mutex

	// BufferDuration is the simulated hardware buffer
	BufferDuration time.Duration

	now   func() time.Time
	sleep func(time.Duration)

	sampleRate int
	channels   int
	started    time.Time
	written    int64
	running    bool
	ready      bool
}

// NewNull creates a null output with a 100ms buffer
func NewNull() Output {
	return &Null{
		BufferDuration: 100 * time.Millisecond,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// Open records the format
func (n *Null) Open(sampleRate, channels int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sampleRate = sampleRate
	n.channels = channels
	n.running = false
	n.ready = true
	return nil
}

// played returns frames consumed since the run started. Caller holds n.mu.
func (n *Null) played() int64 {
	return int64(n.now().Sub(n.started).Seconds() * float64(n.sampleRate))
}

// Write accepts samples and blocks until the simulated buffer has room
func (n *Null) Write(samples []int32) error {
	n.mu.Lock()
	if !n.ready {
		n.mu.Unlock()
		return ErrNotOpen
	}
	if n.running && n.played() > n.written {
		n.running = false
		n.mu.Unlock()
		return ErrUnderrun
	}
	if !n.running {
		n.running = true
		n.started = n.now()
		n.written = 0
	}
	n.written += int64(len(samples) / n.channels)

	limit := int64(n.BufferDuration.Seconds() * float64(n.sampleRate))
	excess := n.written - n.played() - limit
	rate := n.sampleRate
	n.mu.Unlock()

	if excess > 0 {
		n.sleep(time.Duration(excess) * time.Second / time.Duration(rate))
	}
	return nil
}

// Delay returns frames written but not yet consumed
func (n *Null) Delay() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return 0
	}
	d := n.written - n.played()
	if d < 0 {
		return 0
	}
	return int(d)
}

// Reset stops the simulated playhead
func (n *Null) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	n.written = 0
	return nil
}

// Close marks the output closed
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = false
	return nil
}
