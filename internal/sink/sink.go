// ABOUTME: Sink interface shared by the device and stream consumers
// ABOUTME: One sink drains one input queue for the life of a pipeline
package sink

import (
	"errors"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/queue"
)

// MessageQueue is the queue type every sink drains
type MessageQueue = queue.Queue[*audio.Message]

// ErrStopped is returned to callers blocked on a sink that shut down
var ErrStopped = errors.New("sink stopped")

// Sink consumes a message queue until it closes
type Sink interface {
	// Start launches the sink's worker on q
	Start(q *MessageQueue) error

	// Stop terminates q and waits for the worker to exit
	Stop()
}

// WarmupResetter is implemented by sinks that rebuffer when the upstream
// source reconnects
type WarmupResetter interface {
	ResetWarmup()
}
