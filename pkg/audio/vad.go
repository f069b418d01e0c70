package audio

// Default RMS thresholds bounding the sensitivity scale. At sensitivity 1 a
// frame must reach DefaultMaxThreshold to pass the gate; at sensitivity 100 it
// only needs DefaultMinThreshold.
const (
	DefaultMinThreshold = 0.005
	DefaultMaxThreshold = 0.15
)

// Gate drops audio frames whose energy falls below a sensitivity-derived RMS
// threshold. Gating silent frames before transmission is a bandwidth and cost
// control, not a correctness requirement; a gated frame is simply never sent.
//
// The zero value uses the default threshold bounds and sensitivity 50.
type Gate struct {
	// MinThreshold is the RMS floor reached at sensitivity 100.
	MinThreshold float64

	// MaxThreshold is the RMS ceiling applied at sensitivity 1.
	MaxThreshold float64

	// Sensitivity is the user-facing 1–100 knob. Values outside the range are
	// clamped. Higher sensitivity means a lower threshold, so more frames pass.
	Sensitivity int
}

// Threshold derives the RMS threshold for the gate's sensitivity by inverse
// linear interpolation between MaxThreshold (sensitivity 1) and MinThreshold
// (sensitivity 100). The mapping is monotone: for s1 < s2,
// Threshold(s1) >= Threshold(s2).
func (g Gate) Threshold() float64 {
	minT := g.MinThreshold
	maxT := g.MaxThreshold
	if minT <= 0 {
		minT = DefaultMinThreshold
	}
	if maxT <= 0 {
		maxT = DefaultMaxThreshold
	}
	if maxT < minT {
		maxT = minT
	}

	s := g.Sensitivity
	if s == 0 {
		s = 50
	}
	if s < 1 {
		s = 1
	}
	if s > 100 {
		s = 100
	}

	frac := float64(s-1) / 99
	return maxT - frac*(maxT-minT)
}

// Pass reports whether the frame's RMS energy meets the gate threshold.
func (g Gate) Pass(pcm []byte) bool {
	return RMS(pcm) >= g.Threshold()
}
