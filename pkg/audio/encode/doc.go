// ABOUTME: Audio encoder package for linear PCM
// ABOUTME: Provides the Encoder interface and the PCM implementation
// Package encode turns int32 samples in the 24-bit range back into
// little-endian PCM bytes. Output devices use it for their fixed 16-bit
// format; file readers use PutNative for samples decoded at their own depth.
//
// Example:
//
//	encoder, err := encode.NewPCM(audio.Format{BitDepth: 16})
//	data, err := encoder.Encode(samples)
package encode
