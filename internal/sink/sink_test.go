// ABOUTME: Shared helpers for sink tests
// ABOUTME: Builds input queues and filled PCM messages
package sink

import (
	"testing"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/Resonate-Protocol/pcmrelay/pkg/queue"
	"github.com/stretchr/testify/require"
)

func newTestQueue(capacity int) *MessageQueue {
	return queue.New[*audio.Message](capacity)
}

// filledMessage returns a 16-bit stereo message of frames frames, every
// byte set to fill.
func filledMessage(t *testing.T, frames int, fill byte) *audio.Message {
	t.Helper()
	data := make([]byte, frames*4)
	for i := range data {
		data[i] = fill
	}
	msg, err := audio.NewMessage(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}, data)
	require.NoError(t, err)
	return msg
}
