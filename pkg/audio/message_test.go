// ABOUTME: Tests for PCM messages
// ABOUTME: Covers the frame-size invariant, flush markers and the read cursor
package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageFrameInvariant(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		size    int
		frames  int
		wantErr bool
	}{
		{"16bit stereo", Format{44100, 2, 16}, 1764, 441, false},
		{"24bit stereo", Format{48000, 2, 24}, 600, 100, false},
		{"8bit mono", Format{8000, 1, 8}, 3, 3, false},
		{"32bit 6ch", Format{48000, 6, 32}, 240, 10, false},
		{"partial frame", Format{44100, 2, 16}, 1763, 0, true},
		{"24bit misaligned", Format{48000, 2, 24}, 8, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.format, make([]byte, tt.size))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.frames, msg.Frames())
			assert.Equal(t, msg.Channels*(msg.BitDepth/8)*msg.Frames(), msg.Len())
		})
	}
}

func TestFlushMessage(t *testing.T) {
	msg, err := NewMessage(Format{}, nil)
	require.NoError(t, err)
	assert.True(t, msg.IsFlush())
	assert.Equal(t, 0, msg.Frames())
	assert.Nil(t, msg.Remaining())
}

func TestMessageCursor(t *testing.T) {
	msg, err := NewMessage(Format{44100, 2, 16}, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	assert.False(t, msg.Advance(3))
	assert.Equal(t, []byte{4, 5, 6, 7, 8}, msg.Remaining())

	assert.True(t, msg.Advance(10))
	assert.Equal(t, 8, msg.Cursor)
	assert.Nil(t, msg.Remaining())
}

func TestMessageRelease(t *testing.T) {
	msg, err := NewMessage(Format{44100, 2, 16}, make([]byte, 8))
	require.NoError(t, err)

	msg.Advance(4)
	msg.Release()
	msg.Release()

	assert.Nil(t, msg.Data)
	assert.Equal(t, 0, msg.Cursor)
}
