// ABOUTME: PCM audio message passed between producers, queues and sinks
// ABOUTME: Carries format metadata, an owned buffer and a stream read cursor
package audio

import "fmt"

// Message is one chunk of interleaved little-endian PCM audio.
//
// A Message has exactly one owner at a time. Handing it to a queue transfers
// ownership; the producer must not touch Data afterwards. The consumer that
// finishes with it (or the queue, on eviction) calls Release.
//
// A Message with no data is a valid flush marker and carries no format.
type Message struct {
	Format

	// Data holds the samples. Its length is fixed at construction.
	Data []byte

	// Cursor is the offset of the next unconsumed byte. Only stream
	// consumers move it.
	Cursor int
}

// NewMessage wraps data in a Message, taking ownership of the slice.
func NewMessage(format Format, data []byte) (*Message, error) {
	if len(data) == 0 {
		return &Message{Format: format}, nil
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if len(data)%format.BytesPerFrame() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames",
			ErrInvalidFormat, len(data), format.BytesPerFrame())
	}
	return &Message{Format: format, Data: data}, nil
}

// Len returns the byte length of the buffer
func (m *Message) Len() int {
	return len(m.Data)
}

// Frames returns the number of interleaved frames in the buffer
func (m *Message) Frames() int {
	if len(m.Data) == 0 {
		return 0
	}
	return len(m.Data) / m.BytesPerFrame()
}

// IsFlush reports whether this is a zero-length marker
func (m *Message) IsFlush() bool {
	return len(m.Data) == 0
}

// Remaining returns the unconsumed tail of the buffer
func (m *Message) Remaining() []byte {
	if m.Cursor >= len(m.Data) {
		return nil
	}
	return m.Data[m.Cursor:]
}

// Advance moves the cursor forward by n bytes and reports whether the
// message is now exhausted.
func (m *Message) Advance(n int) bool {
	m.Cursor += n
	if m.Cursor > len(m.Data) {
		m.Cursor = len(m.Data)
	}
	return m.Cursor >= len(m.Data)
}

// Release drops the buffer. Safe to call more than once.
func (m *Message) Release() {
	m.Data = nil
	m.Cursor = 0
}
