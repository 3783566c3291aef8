// ABOUTME: Audio resampling package for drift compensation
// ABOUTME: Streaming linear and windowed-sinc converters with a variable ratio
// Package resample provides streaming sample-rate converters whose ratio
// can change between calls, as needed to steer a playback buffer toward a
// target depth.
//
// The ratio is output frames over input frames.
//
// Example:
//
//	c := resample.NewConverter(resample.QualityFastest, 2)
//	out := c.Process(samples, 1.002)
package resample
