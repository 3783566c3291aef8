// ABOUTME: Tests for the linear and sinc resamplers
// ABOUTME: Checks frame counts, continuity across chunks and DC preservation
package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(frames, channels, start int) []int32 {
	out := make([]int32, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = int32((start + i) * 100)
		}
	}
	return out
}

func TestLinearUnityRatioDelaysOneFrame(t *testing.T) {
	r := New(2)

	first := r.Process(ramp(4, 2, 0), 1.0)
	require.Len(t, first, 8)
	// first frame is duplicated while priming
	assert.Equal(t, []int32{0, 0, 0, 0, 100, 100, 200, 200}, first)

	second := r.Process(ramp(4, 2, 4), 1.0)
	assert.Equal(t, []int32{300, 300, 400, 400, 500, 500, 600, 600}, second)
}

func TestLinearRatioChangesFrameCount(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
	}{
		{"slow down", 1.1},
		{"speed up", 0.9},
		{"upsample 44.1 to 48", 48000.0 / 44100.0},
		{"double", 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(2)
			total := 0
			for i := 0; i < 20; i++ {
				total += len(r.Process(ramp(441, 2, i*441), tt.ratio)) / 2
			}
			expected := float64(20*441) * tt.ratio
			assert.InDelta(t, expected, float64(total), 2)
			assert.InDelta(t, float64(OutputFramesFor(20*441, tt.ratio)), float64(total), 2)
		})
	}
}

func TestLinearInterpolatesAcrossChunks(t *testing.T) {
	r := New(1)
	var out []int32
	for i := 0; i < 5; i++ {
		out = append(out, r.Process(ramp(10, 1, i*10), 2.0)...)
	}
	// A ramp stays monotonic across chunk boundaries
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i], out[i-1], "sample %d", i)
	}
}

func TestLinearReset(t *testing.T) {
	r := New(1)
	r.Process([]int32{1000, 2000}, 1.0)
	r.Reset()
	out := r.Process([]int32{5, 6}, 1.0)
	assert.Equal(t, []int32{5, 5}, out)
}

func TestSincFrameCount(t *testing.T) {
	for _, zc := range []int{8, 16, 32} {
		s := NewSinc(2, zc)
		total := 0
		const chunk = 441
		for i := 0; i < 10; i++ {
			total += len(s.Process(ramp(chunk, 2, i*chunk), 1.0)) / 2
		}
		assert.Equal(t, 10*chunk-zc, total, "zero crossings %d", zc)
	}
}

func TestSincVariableRatio(t *testing.T) {
	s := NewSinc(2, 8)
	total := 0
	ratios := []float64{1.0, 1.05, 1.1, 0.95, 0.9, 1.0}
	for i, ratio := range ratios {
		total += len(s.Process(ramp(1000, 2, i*1000), ratio)) / 2
	}
	expected := 0.0
	for _, ratio := range ratios {
		expected += 1000 * ratio
	}
	// Only the filter latency and rounding separate the two
	assert.InDelta(t, expected, float64(total), 8*1.1+4)
}

func TestSincPreservesDC(t *testing.T) {
	s := NewSinc(1, 8)
	const level = 1 << 20
	input := make([]int32, 2000)
	for i := range input {
		input[i] = level
	}

	s.Process(input, 1.03)
	out := s.Process(input, 1.03)
	require.NotEmpty(t, out)
	for i, v := range out {
		if math.Abs(float64(v-level)) > 2 {
			t.Fatalf("sample %d: expected %d, got %d", i, level, v)
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		name    string
		want    Quality
		wantErr bool
	}{
		{"linear", QualityLinear, false},
		{"", QualityFastest, false},
		{"fastest", QualityFastest, false},
		{"medium", QualityMedium, false},
		{"best", QualityBest, false},
		{"ultra", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuality(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestNewConverterKinds(t *testing.T) {
	assert.IsType(t, &Resampler{}, NewConverter(QualityLinear, 2))
	assert.IsType(t, &Sinc{}, NewConverter(QualityFastest, 2))
	assert.Equal(t, 32, NewConverter(QualityBest, 2).(*Sinc).zeroCrossings)
}
