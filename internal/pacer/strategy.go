// ABOUTME: Packet scheduling strategies for the paced reader
// ABOUTME: Timer-driven for static files, immediate for naturally blocking sources
package pacer

import (
	"context"
	"time"
)

// Clock supplies wall time and timers
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock
var SystemClock Clock = realClock{}

// Strategy decides when the reader pulls its next packet
type Strategy interface {
	// Wait blocks until the next packet is due. next is the interval
	// computed after the previous packet, zero before the first.
	Wait(ctx context.Context, next time.Duration) error

	// Paced reports whether the strategy follows the computed intervals
	Paced() bool
}

// TimerStrategy re-arms a timer with each computed interval
type TimerStrategy struct {
	Clock Clock
}

func (s TimerStrategy) Wait(ctx context.Context, next time.Duration) error {
	if next <= 0 {
		return ctx.Err()
	}
	clock := s.Clock
	if clock == nil {
		clock = SystemClock
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(next):
		return nil
	}
}

func (TimerStrategy) Paced() bool { return true }

// BlockingStrategy loops read then send; the source's own blocking reads
// provide the pacing.
type BlockingStrategy struct{}

func (BlockingStrategy) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (BlockingStrategy) Paced() bool { return false }
