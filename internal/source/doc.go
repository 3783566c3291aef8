// ABOUTME: Audio source package
// ABOUTME: File, pipe and generator readers for the paced reader
// Package source implements pacer.Source for WAV, MP3 and FLAC files, raw
// PCM on a named pipe or stdin, and a test tone. Every source produces
// interleaved little-endian PCM in whole frames.
package source
