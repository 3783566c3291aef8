// ABOUTME: Packet sizing and self-correcting tick interval arithmetic
// ABOUTME: Keeps long-run packet delivery on the wall clock despite timer jitter
package pacer

import (
	"time"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

const (
	// DefaultPeriod is the nominal spacing between packets
	DefaultPeriod = 10 * time.Millisecond

	// MaxPacketBytes caps a single packet
	MaxPacketBytes = 4096

	DefaultSpeed = 100
	MinSpeed     = 75
	MaxSpeed     = 150

	// offsets inside this band leave the interval at the nominal period
	deadband = time.Millisecond
)

// ClampSpeed maps a playback speed percentage into the supported range.
// Zero selects the default.
func ClampSpeed(speed int) int {
	if speed == 0 {
		return DefaultSpeed
	}
	return min(max(speed, MinSpeed), MaxSpeed)
}

// Pacing holds the packet geometry and the running drift offset
type Pacing struct {
	PeriodMs    int64
	NormBytes   int
	PacketBytes int
	IdealUs     int64

	offset   time.Duration
	lastTick time.Time
}

// NewPacing sizes packets for format at speed percent. Speed scales the
// packet size; the tick period stays fixed.
func NewPacing(format audio.Format, speed int, period time.Duration) *Pacing {
	if period < time.Millisecond {
		period = DefaultPeriod
	}
	speed = ClampSpeed(speed)
	periodMs := period.Milliseconds()
	bpf := format.BytesPerFrame()

	norm := min(format.SampleRate*bpf*int(periodMs)/1000, MaxPacketBytes)
	normFrames := norm / bpf

	var ideal int64
	if tenths := int64(format.SampleRate / 10); tenths > 0 {
		ideal = (int64(normFrames)*1_000_000/tenths + 5) / 10
	}

	pkt := min(norm*speed/100, MaxPacketBytes)
	pkt -= pkt % bpf
	if pkt < bpf {
		pkt = bpf
	}

	return &Pacing{
		PeriodMs:    periodMs,
		NormBytes:   norm,
		PacketBytes: pkt,
		IdealUs:     ideal,
	}
}

// Ideal returns the playback duration of a nominal packet
func (p *Pacing) Ideal() time.Duration {
	return time.Duration(p.IdealUs) * time.Microsecond
}

// Offset returns the accumulated lead (positive) or lag (negative)
func (p *Pacing) Offset() time.Duration {
	return p.offset
}

// Next records a packet sent at now and returns the delay before the next one
func (p *Pacing) Next(now time.Time) time.Duration {
	if !p.lastTick.IsZero() && p.lastTick.Before(now) {
		p.offset -= now.Sub(p.lastTick) - p.Ideal()
	}
	p.lastTick = now

	switch {
	case p.offset < -deadband:
		offMs := p.offset.Milliseconds()
		if offMs < 1-p.PeriodMs {
			return time.Millisecond
		}
		return time.Duration(p.PeriodMs+offMs) * time.Millisecond
	case p.offset > deadband:
		return time.Duration(p.PeriodMs+1) * time.Millisecond
	default:
		return time.Duration(p.PeriodMs) * time.Millisecond
	}
}

// Pause forgets the last tick so the paused interval isn't counted as drift.
// The offset is kept.
func (p *Pacing) Pause() {
	p.lastTick = time.Time{}
}
