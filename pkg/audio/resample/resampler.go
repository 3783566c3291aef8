// ABOUTME: Streaming linear resampler with a per-call conversion ratio
// ABOUTME: Carries the last frame and fractional position across chunks
package resample

// Resampler performs linear interpolation between consecutive frames.
// The ratio passed to Process is output rate over input rate, so values
// above 1 produce more frames than they consume.
type Resampler struct {
	channels  int
	position  float64 // read position; 0 is lastFrame
	lastFrame []int32 // one sample per channel
	primed    bool
}

// New creates a new linear resampler
func New(channels int) *Resampler {
	return &Resampler{
		channels:  channels,
		lastFrame: make([]int32, channels),
	}
}

// Process converts interleaved input at the given ratio. The output is
// delayed by one frame relative to the input.
func (r *Resampler) Process(input []int32, ratio float64) []int32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 || ratio <= 0 {
		return nil
	}

	if !r.primed {
		copy(r.lastFrame, input[:r.channels])
		r.position = 0
		r.primed = true
	}

	step := 1.0 / ratio
	output := make([]int32, 0, (OutputFramesFor(inputFrames, ratio)+2)*r.channels)

	// Virtual frame k is lastFrame for k == 0 and input frame k-1 otherwise
	frame := func(k, ch int) int32 {
		if k == 0 {
			return r.lastFrame[ch]
		}
		return input[(k-1)*r.channels+ch]
	}

	for r.position < float64(inputFrames) {
		idx := int(r.position)
		frac := r.position - float64(idx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := frame(idx, ch)
			s2 := frame(idx+1, ch)
			output = append(output, int32(float64(s1)*(1.0-frac)+float64(s2)*frac))
		}

		r.position += step
	}

	r.position -= float64(inputFrames)
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:])

	return output
}

// Reset forgets the carried frame and position
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputFramesFor estimates the output frame count for inputFrames at ratio
func OutputFramesFor(inputFrames int, ratio float64) int {
	return int(float64(inputFrames)*ratio + 0.5)
}
