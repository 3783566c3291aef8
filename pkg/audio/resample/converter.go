// ABOUTME: Converter interface and quality selection
// ABOUTME: Maps configuration names to linear or windowed-sinc converters
package resample

import "fmt"

// Converter is a streaming sample-rate converter whose ratio may change
// on every call.
type Converter interface {
	// Process converts interleaved 24-bit range samples; ratio is output/input
	Process(input []int32, ratio float64) []int32

	// Reset drops all carried state
	Reset()
}

// Quality selects a converter implementation
type Quality int

const (
	QualityLinear Quality = iota
	QualityFastest
	QualityMedium
	QualityBest
)

// ParseQuality maps a config string to a Quality
func ParseQuality(name string) (Quality, error) {
	switch name {
	case "linear":
		return QualityLinear, nil
	case "", "fastest":
		return QualityFastest, nil
	case "medium":
		return QualityMedium, nil
	case "best":
		return QualityBest, nil
	default:
		return 0, fmt.Errorf("unknown resample quality %q (linear, fastest, medium, best)", name)
	}
}

func (q Quality) String() string {
	switch q {
	case QualityLinear:
		return "linear"
	case QualityFastest:
		return "fastest"
	case QualityMedium:
		return "medium"
	case QualityBest:
		return "best"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// NewConverter builds the converter for q
func NewConverter(q Quality, channels int) Converter {
	switch q {
	case QualityLinear:
		return New(channels)
	case QualityMedium:
		return NewSinc(channels, 16)
	case QualityBest:
		return NewSinc(channels, 32)
	default:
		return NewSinc(channels, 8)
	}
}
