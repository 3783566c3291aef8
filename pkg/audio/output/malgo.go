// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Feeds a miniaudio playback callback from a sample ring buffer
package output

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	channels   int
	ready      bool

	// Ring buffer for callback-based playback
	ringBuffer *RingBuffer
	mu         sync.Mutex

	// set by the callback when it had to pad with silence after audio
	// had started flowing
	starved atomic.Bool
	flowing atomic.Bool
}

// RingBuffer provides thread-safe circular buffer for audio samples
type RingBuffer struct {
	buffer   []int32
	readPos  int
	writePos int
	size     int
	count    int // Number of samples currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]int32, capacity),
		size:   capacity,
	}
}

// Write adds samples to the ring buffer
func (rb *RingBuffer) Write(samples []int32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples) && rb.count < rb.size; i++ {
		rb.buffer[rb.writePos] = samples[i]
		rb.writePos = (rb.writePos + 1) % rb.size
		rb.count++
		written++
	}
	return written
}

// Read retrieves samples from the ring buffer, zero-filling on underrun
func (rb *RingBuffer) Read(samples []int32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(samples) && rb.count > 0; i++ {
		samples[i] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
		rb.count--
		read++
	}

	for i := read; i < len(samples); i++ {
		samples[i] = 0
	}

	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free slots in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// Clear empties the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos, rb.writePos, rb.count = 0, 0, 0
}

// NewMalgo creates a new Malgo output
func NewMalgo() Output {
	return &Malgo{}
}

// Open initializes the output device with specified format
func (m *Malgo) Open(sampleRate, channels int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logging.Component("output.malgo")

	if m.device != nil && m.sampleRate == sampleRate && m.channels == channels {
		return nil
	}

	if m.device != nil {
		log.Info().
			Int("old_rate", m.sampleRate).Int("new_rate", sampleRate).
			Msg("format change detected, reinitializing device")
		m.closeDevice()
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	// Ring buffer (500ms capacity)
	m.ringBuffer = NewRingBuffer((sampleRate * channels * 500) / 1000)
	m.channels = channels

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		m.dataCallback(pOutputSample, frameCount)
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.sampleRate = sampleRate
	m.ready = true

	log.Info().Int("sample_rate", sampleRate).Int("channels", channels).Msg("audio output initialized")
	return nil
}

// Write queues audio samples for playback, waiting while the ring is full
func (m *Malgo) Write(samples []int32) error {
	if !m.ready {
		return ErrNotOpen
	}
	if m.starved.Swap(false) {
		return ErrUnderrun
	}

	written := 0
	for written < len(samples) {
		if m.ringBuffer.Free() == 0 {
			// a callback period is at least a few milliseconds
			time.Sleep(2 * time.Millisecond)
			continue
		}
		written += m.ringBuffer.Write(samples[written:])
	}
	m.flowing.Store(true)
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	samples := make([]int32, int(frameCount)*m.channels)

	if n := m.ringBuffer.Read(samples); n < len(samples) && m.flowing.Load() {
		m.starved.Store(true)
	}

	for i, sample := range samples {
		sample16 := audio.SampleToInt16(sample)
		pOutput[i*2] = byte(sample16)
		pOutput[i*2+1] = byte(sample16 >> 8)
	}
}

// Delay returns frames waiting in the ring buffer
func (m *Malgo) Delay() int {
	if !m.ready {
		return 0
	}
	return m.ringBuffer.Available() / m.channels
}

// Reset clears the ring buffer; the callback plays silence until refilled
func (m *Malgo) Reset() error {
	if !m.ready {
		return ErrNotOpen
	}
	m.flowing.Store(false)
	m.ringBuffer.Clear()
	m.starved.Store(false)
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			logging.Component("output.malgo").Warn().Err(err).Msg("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			logging.Component("output.malgo").Warn().Err(err).Msg("device stop error")
		}
		m.device.Uninit()
		m.device = nil
		m.ready = false
	}
}
