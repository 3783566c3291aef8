// ABOUTME: Streaming windowed-sinc resampler with a variable ratio
// ABOUTME: Blackman-windowed kernel read from a precomputed table
package resample

import (
	"math"

	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
)

const (
	tableResolution = 256
	sincCutoff      = 0.9
)

// Sinc interpolates with a Blackman-windowed sinc kernel spanning
// zeroCrossings input frames on each side of the read position. The
// cutoff sits below Nyquist so ratios down to 0.9 do not alias.
type Sinc struct {
	channels      int
	zeroCrossings int
	table         []float64
	history       []float32 // interleaved frames not yet fully consumed
	position      float64   // read position in history frames
	weights       []float64
}

// NewSinc creates a sinc resampler. More zero crossings cost more CPU and
// give a steeper filter.
func NewSinc(channels, zeroCrossings int) *Sinc {
	if zeroCrossings < 2 {
		zeroCrossings = 2
	}
	s := &Sinc{
		channels:      channels,
		zeroCrossings: zeroCrossings,
		table:         buildKernel(zeroCrossings),
		weights:       make([]float64, 2*zeroCrossings),
	}
	s.Reset()
	return s
}

// buildKernel tabulates h(x) for x in [0, zeroCrossings] plus a guard entry
func buildKernel(zeroCrossings int) []float64 {
	n := zeroCrossings * tableResolution
	table := make([]float64, n+2)
	for i := 0; i <= n; i++ {
		x := float64(i) / tableResolution
		table[i] = sincCutoff * sinc(sincCutoff*x) * blackman(x/float64(zeroCrossings))
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func blackman(u float64) float64 {
	if u < -1 || u > 1 {
		return 0
	}
	return 0.42 + 0.5*math.Cos(math.Pi*u) + 0.08*math.Cos(2*math.Pi*u)
}

func (s *Sinc) kernel(x float64) float64 {
	x = math.Abs(x)
	if x >= float64(s.zeroCrossings) {
		return 0
	}
	idx := x * tableResolution
	i := int(idx)
	frac := idx - float64(i)
	return s.table[i]*(1-frac) + s.table[i+1]*frac
}

// Process converts interleaved input at the given ratio (output/input).
// Output lags input by zeroCrossings frames.
func (s *Sinc) Process(input []int32, ratio float64) []int32 {
	if len(input) < s.channels || ratio <= 0 {
		return nil
	}

	for _, v := range input[:len(input)-len(input)%s.channels] {
		s.history = append(s.history, audio.SampleToFloat(v))
	}

	frames := len(s.history) / s.channels
	step := 1.0 / ratio
	zc := s.zeroCrossings
	output := make([]int32, 0, (OutputFramesFor(len(input)/s.channels, ratio)+2)*s.channels)

	for {
		idx := int(s.position)
		if idx+zc >= frames {
			break
		}
		frac := s.position - float64(idx)

		var sum float64
		for k := -zc + 1; k <= zc; k++ {
			w := s.kernel(float64(k) - frac)
			s.weights[k+zc-1] = w
			sum += w
		}
		if sum == 0 {
			sum = 1
		}

		for ch := 0; ch < s.channels; ch++ {
			var acc float64
			for k := -zc + 1; k <= zc; k++ {
				acc += float64(s.history[(idx+k)*s.channels+ch]) * s.weights[k+zc-1]
			}
			output = append(output, audio.SampleFromFloat(float32(acc/sum)))
		}

		s.position += step
	}

	// Drop frames that no future output can reach
	if drop := int(s.position) - zc + 1; drop > 0 {
		if drop > frames {
			drop = frames
		}
		s.history = append(s.history[:0], s.history[drop*s.channels:]...)
		s.position -= float64(drop)
	}

	return output
}

// Reset clears the history and primes it with silence
func (s *Sinc) Reset() {
	s.history = make([]float32, s.zeroCrossings*s.channels, (s.zeroCrossings+4096)*s.channels)
	s.position = float64(s.zeroCrossings)
}
