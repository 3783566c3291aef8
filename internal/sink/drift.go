// ABOUTME: Proportional clock-drift controller for the device sink
// ABOUTME: Turns device queue occupancy into a smoothed resampling ratio
package sink

import "math"

const (
	// DriftGain is the proportional gain applied to the normalized error
	DriftGain = 0.1

	// MinRatio and MaxRatio bound every candidate ratio
	MinRatio = 0.9
	MaxRatio = 1.1

	// DriftWindow is the number of candidates averaged into the ratio
	DriftWindow = 128
)

// CandidateRatio computes the unsmoothed ratio for one occupancy sample.
//
// The ratio is output/input frames: above 1.0 the converter produces more
// frames than it consumes, which lifts a queue that is running below
// target. Non-finite input yields 1.0.
func CandidateRatio(target, occupancy float64) float64 {
	if target <= 0 || math.IsNaN(occupancy) || math.IsInf(occupancy, 0) {
		return 1.0
	}
	e := (target - occupancy) / target
	r := 1.0 + DriftGain*e
	if math.IsNaN(r) {
		return 1.0
	}
	return min(max(r, MinRatio), MaxRatio)
}

// DriftController smooths candidate ratios with a moving average
type DriftController struct {
	target float64
	window []float64
	next   int
	filled int
	sum    float64
}

// NewDriftController creates a controller aiming for target queued blocks
func NewDriftController(target float64, window int) *DriftController {
	if window < 1 {
		window = DriftWindow
	}
	return &DriftController{
		target: target,
		window: make([]float64, window),
	}
}

// Update folds in a new occupancy sample and returns the smoothed ratio
func (d *DriftController) Update(occupancy float64) float64 {
	r := CandidateRatio(d.target, occupancy)

	if d.filled == len(d.window) {
		d.sum -= d.window[d.next]
	} else {
		d.filled++
	}
	d.window[d.next] = r
	d.sum += r
	d.next = (d.next + 1) % len(d.window)

	// recompute once per lap so float error doesn't accumulate
	if d.next == 0 {
		d.sum = 0
		for _, v := range d.window[:d.filled] {
			d.sum += v
		}
	}

	return d.sum / float64(d.filled)
}

// Reset forgets all history
func (d *DriftController) Reset() {
	for i := range d.window {
		d.window[i] = 0
	}
	d.next = 0
	d.filled = 0
	d.sum = 0
}
