// ABOUTME: Audio decoder package for linear PCM
// ABOUTME: Provides the Decoder interface and the PCM implementation
// Package decode turns little-endian PCM bytes of any supported bit depth
// (8, 16, 24, 32) into int32 samples in the 24-bit range used by the
// resampler and output backends.
//
// Example:
//
//	decoder, err := decode.NewPCM(msg.Format)
//	samples, err := decoder.Decode(msg.Data)
package decode
