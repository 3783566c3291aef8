// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output interface and oto, malgo, PortAudio and null backends
// Package output provides audio playback backends.
//
// Every backend plays 16-bit little-endian interleaved PCM and reports
// how many frames it still holds (Delay) so callers can steer a buffer
// toward a target depth. PortAudio is only compiled with -tags portaudio.
//
// Example:
//
//	out, err := output.New("oto")
//	err = out.Open(44100, 2)
//	err = out.Write(samples)
//	if errors.Is(err, output.ErrUnderrun) {
//	    out.Reset()
//	}
package output
