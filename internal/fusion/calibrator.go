package fusion

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
)

// State is the calibration lifecycle.
type State int

const (
	StateIdle State = iota
	StateCalibrating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalibrating:
		return "calibrating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Baseline is the per-sensor rest reading subtracted from live frames.
type Baseline [frame.Sensors]r3.Vector

// Calibrator averages the first ZeroFrames frames after StartCalibration
// into a Baseline. It is not safe for concurrent use; the frame loop owns it.
type Calibrator struct {
	params Params

	sum      [frame.Sensors]r3.Vector
	count    int
	baseline Baseline
	state    State

	scratch [frame.Sensors]r3.Vector
	// z readings kept for the noise report
	zs [frame.Sensors][]float64
}

// NewCalibrator returns an idle calibrator.
func NewCalibrator(p Params) *Calibrator {
	c := &Calibrator{params: p}
	for i := range c.zs {
		c.zs[i] = make([]float64, 0, p.ZeroFrames)
	}
	return c
}

// StartCalibration discards any baseline and starts accumulating.
func (c *Calibrator) StartCalibration() {
	c.sum = [frame.Sensors]r3.Vector{}
	c.count = 0
	c.baseline = Baseline{}
	c.state = StateCalibrating
	for i := range c.zs {
		c.zs[i] = c.zs[i][:0]
	}
}

// AddSample feeds one frame. It returns true exactly once per calibration,
// on the frame that completes the baseline. Frames arriving while not
// calibrating are ignored.
func (c *Calibrator) AddSample(f frame.RawFrame) bool {
	if c.state != StateCalibrating {
		return false
	}
	c.params.remap(&f, &c.scratch)
	for i, v := range c.scratch {
		c.sum[i] = c.sum[i].Add(v)
		c.zs[i] = append(c.zs[i], v.Z)
	}
	c.count++
	if c.count < c.params.ZeroFrames {
		return false
	}
	inv := 1 / float64(c.count)
	for i := range c.sum {
		c.baseline[i] = c.sum[i].Mul(inv)
	}
	c.state = StateReady
	return true
}

// Baseline returns the finished baseline, or false while none exists.
func (c *Calibrator) Baseline() (Baseline, bool) {
	return c.baseline, c.state == StateReady
}

// State reports where the calibrator is in its lifecycle.
func (c *Calibrator) State() State {
	return c.state
}

// Calibrating is shorthand for State() == StateCalibrating.
func (c *Calibrator) Calibrating() bool {
	return c.state == StateCalibrating
}

// Progress returns the number of frames collected and the number needed.
func (c *Calibrator) Progress() (int, int) {
	return c.count, c.params.ZeroFrames
}

// NoiseReport summarizes the frames a baseline was built from.
type NoiseReport struct {
	Baseline Baseline                `json:"baseline"`
	MeanZ    [frame.Sensors]float64 `json:"mean_z"`
	StdDevZ  [frame.Sensors]float64 `json:"stddev_z"`
	// Gated is true for sensors whose rest noise stays below the noise gate.
	Gated  [frame.Sensors]bool `json:"gated"`
	Frames int                 `json:"frames"`
}

// Report returns noise statistics of the collected frames. The result is
// only meaningful once the baseline is ready.
func (c *Calibrator) Report() NoiseReport {
	r := NoiseReport{Baseline: c.baseline, Frames: c.count}
	for i, zs := range c.zs {
		if len(zs) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(zs, nil)
		if len(zs) < 2 {
			std = 0
		}
		r.MeanZ[i] = mean
		r.StdDevZ[i] = std
		r.Gated[i] = 3*std < c.params.NoiseGate
	}
	return r
}
