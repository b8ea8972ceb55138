package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
)

// pressFrame builds a transmitted frame whose logical z readings, after the
// default remap, are z.
func pressFrame(z [frame.Sensors]float64) frame.RawFrame {
	var v [frame.Sensors]r3.Vector
	for i := range v {
		v[i] = r3.Vector{Z: -z[i]}
	}
	return frame.FromVectors(v)
}

func calibrated(t *testing.T, p Params, rest frame.RawFrame) (*Calibrator, *Pipeline, *ChartBuffer) {
	t.Helper()
	calib := NewCalibrator(p)
	buf := NewChartBuffer(64)
	calib.StartCalibration()
	for i := 0; i < p.ZeroFrames; i++ {
		done := calib.AddSample(rest)
		test.That(t, done, test.ShouldEqual, i == p.ZeroFrames-1)
	}
	return calib, NewPipeline(p, calib, buf), buf
}

func TestDefaultParamsValid(t *testing.T) {
	test.That(t, DefaultParams().Validate(), test.ShouldBeNil)

	p := DefaultParams()
	p.ChipMap = [frame.Sensors]int{0, 0, 2, 3}
	test.That(t, p.Validate(), test.ShouldNotBeNil)

	p = DefaultParams()
	p.AxisOrder = [frame.Axes]int{2, 1, 3}
	test.That(t, p.Validate(), test.ShouldNotBeNil)

	p = DefaultParams()
	p.ZeroFrames = 0
	test.That(t, p.Validate(), test.ShouldNotBeNil)
}

func TestRemap(t *testing.T) {
	p := DefaultParams()
	p.ChipMap = [frame.Sensors]int{3, 2, 1, 0}
	p.AxisOrder = [frame.Axes]int{2, 0, 1}
	p.Sign = r3.Vector{X: 1, Y: -1, Z: 1}

	var f frame.RawFrame
	for i := range f {
		f[i] = float64(i)
	}
	var out [frame.Sensors]r3.Vector
	p.remap(&f, &out)
	// logical 0 reads slot 3 = (9, 10, 11), permuted to (11, 9, 10), signed.
	test.That(t, out[0], test.ShouldResemble, r3.Vector{X: 11, Y: -9, Z: 10})
	test.That(t, out[3], test.ShouldResemble, r3.Vector{X: 2, Y: -0, Z: 1})
}

func TestTransmitInvertsRemap(t *testing.T) {
	p := DefaultParams()
	p.ChipMap = [frame.Sensors]int{1, 3, 0, 2}
	p.AxisOrder = [frame.Axes]int{1, 2, 0}
	p.Sign = r3.Vector{X: -1, Y: 1, Z: -1}

	logical := [frame.Sensors]r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: -4, Y: 5, Z: 6},
		{X: 7, Y: -8, Z: 9},
		{X: 10, Y: 11, Z: -12},
	}
	f := p.Transmit(logical)
	var out [frame.Sensors]r3.Vector
	p.remap(&f, &out)
	test.That(t, out, test.ShouldResemble, logical)
}

func TestCalibrator(t *testing.T) {
	p := DefaultParams()
	calib := NewCalibrator(p)

	t.Run("ignored while idle", func(t *testing.T) {
		test.That(t, calib.State(), test.ShouldEqual, StateIdle)
		test.That(t, calib.AddSample(frame.RawFrame{}), test.ShouldBeFalse)
		_, ok := calib.Baseline()
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("mean of zero frames", func(t *testing.T) {
		calib.StartCalibration()
		test.That(t, calib.Calibrating(), test.ShouldBeTrue)
		for i := 0; i < p.ZeroFrames; i++ {
			z := float64(i) // mean 4.5
			done := calib.AddSample(pressFrame([frame.Sensors]float64{z, z, z, z}))
			test.That(t, done, test.ShouldEqual, i == p.ZeroFrames-1)
		}
		b, ok := calib.Baseline()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, b[2].Z, test.ShouldAlmostEqual, 4.5)
		n, total := calib.Progress()
		test.That(t, n, test.ShouldEqual, total)
	})

	t.Run("ignored once ready", func(t *testing.T) {
		before, _ := calib.Baseline()
		test.That(t, calib.AddSample(pressFrame([frame.Sensors]float64{100, 100, 100, 100})), test.ShouldBeFalse)
		after, _ := calib.Baseline()
		test.That(t, after, test.ShouldResemble, before)
	})

	t.Run("report", func(t *testing.T) {
		r := calib.Report()
		test.That(t, r.Frames, test.ShouldEqual, p.ZeroFrames)
		test.That(t, r.MeanZ[0], test.ShouldAlmostEqual, 4.5)
		test.That(t, r.StdDevZ[0], test.ShouldAlmostEqual, math.Sqrt(110.0/12), 1e-9)
		test.That(t, r.Gated[0], test.ShouldBeFalse)
	})

	t.Run("restart discards baseline", func(t *testing.T) {
		calib.StartCalibration()
		_, ok := calib.Baseline()
		test.That(t, ok, test.ShouldBeFalse)
		n, _ := calib.Progress()
		test.That(t, n, test.ShouldEqual, 0)
	})
}

func TestProcessNotCalibrated(t *testing.T) {
	p := DefaultParams()
	calib := NewCalibrator(p)
	pipe := NewPipeline(p, calib, nil)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		var f frame.RawFrame
		for j := range f {
			f[j] = rng.NormFloat64() * 500
		}
		_, err := pipe.Process(f)
		test.That(t, errors.Is(err, ErrNotCalibrated), test.ShouldBeTrue)
	}

	// still not calibrated part way through
	calib.StartCalibration()
	calib.AddSample(frame.RawFrame{})
	_, err := pipe.Process(frame.RawFrame{})
	test.That(t, err, test.ShouldEqual, ErrNotCalibrated)
}

func TestProcessRestFrame(t *testing.T) {
	rest := pressFrame([frame.Sensors]float64{120, -30, 55, 7})
	_, pipe, buf := calibrated(t, DefaultParams(), rest)

	r, err := pipe.Process(rest)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Contact, test.ShouldResemble, Contact{})
	test.That(t, r.Intensity, test.ShouldEqual, 0.0)

	// a zero sample is still recorded
	samples := buf.Drain(nil)
	test.That(t, samples, test.ShouldResemble, []Sample{{}})
}

func TestProcessSinglePress(t *testing.T) {
	_, pipe, buf := calibrated(t, DefaultParams(), pressFrame([frame.Sensors]float64{}))

	// sensor 1 sits at (-1, 1); X is inverted by default.
	r, err := pipe.Process(pressFrame([frame.Sensors]float64{1.9, 40, 0, 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.X, test.ShouldAlmostEqual, 1.0)
	test.That(t, r.Y, test.ShouldAlmostEqual, 1.0)
	test.That(t, r.Z, test.ShouldAlmostEqual, 0.125)
	test.That(t, r.Intensity, test.ShouldAlmostEqual, (0.125-0.01)/0.99*2.5, 1e-12)
	test.That(t, r.Force, test.ShouldAlmostEqual, 10*0.263, 1e-12)
	test.That(t, r.ForceValue().String(), test.ShouldContainSubstring, "N")

	samples := buf.Drain(nil)
	test.That(t, samples, test.ShouldHaveLength, 1)
	test.That(t, samples[0].Force, test.ShouldAlmostEqual, r.Force)
}

func TestProcessSymmetricWeights(t *testing.T) {
	_, pipe, _ := calibrated(t, DefaultParams(), pressFrame([frame.Sensors]float64{}))

	for _, z := range []float64{10, -25, 300} {
		r, err := pipe.Process(pressFrame([frame.Sensors]float64{z, z, z, z}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r.X, test.ShouldAlmostEqual, 0.0)
		test.That(t, r.Y, test.ShouldAlmostEqual, 0.0)
		test.That(t, r.Intensity, test.ShouldBeGreaterThan, 0.0)
	}

	t.Run("asymmetric layout", func(t *testing.T) {
		p := DefaultParams()
		p.InvertX = false
		p.Layout[0].X = 0.5
		_, pipe, _ := calibrated(t, p, pressFrame([frame.Sensors]float64{}))
		r, err := pipe.Process(pressFrame([frame.Sensors]float64{50, 50, 50, 50}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r.X, test.ShouldAlmostEqual, (0.5-1+1-1)/4.0)
		test.That(t, r.Y, test.ShouldAlmostEqual, 0.0)
	})
}

func TestNoiseGate(t *testing.T) {
	_, pipe, _ := calibrated(t, DefaultParams(), pressFrame([frame.Sensors]float64{}))

	for _, tc := range []struct {
		name string
		z    [frame.Sensors]float64
	}{
		{"all below", [frame.Sensors]float64{1.99, -1.99, 1, 0}},
		{"just below", [frame.Sensors]float64{1.999999, 1.999999, 1.999999, 1.999999}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, err := pipe.Process(pressFrame(tc.z))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, r, test.ShouldResemble, Reading{})
		})
	}

	t.Run("gated sensor does not move centroid", func(t *testing.T) {
		a, err := pipe.Process(pressFrame([frame.Sensors]float64{0, 0, 60, 0}))
		test.That(t, err, test.ShouldBeNil)
		b, err := pipe.Process(pressFrame([frame.Sensors]float64{1.5, -1.5, 60, 1.9}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b, test.ShouldResemble, a)
	})
}

func TestProcessBounds(t *testing.T) {
	p := DefaultParams()
	p.InvertY = true
	// a layout outside the unit square still yields clamped output
	p.Layout[0].X = 3
	rng := rand.New(rand.NewSource(42))
	rest := pressFrame([frame.Sensors]float64{3, -4, 8, 1})
	_, pipe, _ := calibrated(t, p, rest)

	for i := 0; i < 2000; i++ {
		var f frame.RawFrame
		for j := range f {
			f[j] = rng.NormFloat64() * math.Pow(10, float64(rng.Intn(6)))
		}
		r, err := pipe.Process(f)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r.X, test.ShouldBeGreaterThanOrEqualTo, -1.0)
		test.That(t, r.X, test.ShouldBeLessThanOrEqualTo, 1.0)
		test.That(t, r.Y, test.ShouldBeGreaterThanOrEqualTo, -1.0)
		test.That(t, r.Y, test.ShouldBeLessThanOrEqualTo, 1.0)
		test.That(t, r.Intensity, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, r.Intensity, test.ShouldBeLessThanOrEqualTo, 1.0)
		test.That(t, r.Z, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, r.Z, test.ShouldBeLessThanOrEqualTo, 1.0)
	}
}

func TestChartBuffer(t *testing.T) {
	buf := NewChartBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Record(Sample{X: float64(i)})
	}
	got := buf.Drain(make([]Sample, 0, 8))
	test.That(t, got, test.ShouldResemble, []Sample{{X: 2}, {X: 3}, {X: 4}})
	test.That(t, buf.Dropped(), test.ShouldEqual, 2)
	test.That(t, buf.Drain(got), test.ShouldBeEmpty)
}
