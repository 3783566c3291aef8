// ABOUTME: Process-wide zerolog setup
// ABOUTME: Console and optional file output plus per-component child loggers
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	logFile *os.File
)

// Options controls where log output goes
type Options struct {
	Level string
	File  string
	// Quiet drops console output, for example while a TUI owns the terminal
	Quiet bool
}

// Setup replaces the default logger. It returns a function that closes the
// log file, if any.
func Setup(opts Options) (func() error, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}

	var f *os.File
	if opts.File != "" {
		var err error
		f, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	logger := zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp().Logger()

	mu.Lock()
	base = logger
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	mu.Unlock()

	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if logFile == nil {
			return nil
		}
		err := logFile.Close()
		logFile = nil
		return err
	}, nil
}

// SetLogger installs an already configured logger, mainly for tests
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// GetDefaultLogger returns the process logger
func GetDefaultLogger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// Component returns a child logger tagged with the component name
func Component(name string) *zerolog.Logger {
	l := GetDefaultLogger().With().Str("component", name).Logger()
	return &l
}
