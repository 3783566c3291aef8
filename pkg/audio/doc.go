// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Message and sample conversion functions
// Package audio provides the PCM types shared by every stage of the relay.
//
//   - Format: sample rate, channel count and bit depth of a linear PCM stream
//   - Message: one owned chunk of interleaved little-endian PCM plus a read cursor
//
// Samples travel between stages as int32 values left-justified in the
// 24-bit range, so 16-bit input is shifted up by 8 bits and 24-bit input
// is used as is.
//
// Example:
//
//	format := audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
//	msg, err := audio.NewMessage(format, pcm)
//
//	// Network streams carry big-endian samples
//	audio.SwapBytes(payload, format.BitDepth)
package audio
