package field

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/relabs-tech/tactile_viewer/internal/surface"
)

// grid returns an n x n lattice of points in the XY plane with pitch
// spacing and (u, v) spread evenly over [0, 1].
func grid(n int, spacing float64) []surface.SamplePoint {
	pts := make([]surface.SamplePoint, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pts = append(pts, surface.SamplePoint{
				Position: r3.Vector{X: float64(i) * spacing, Y: float64(j) * spacing},
				Normal:   r3.Vector{Z: 1},
				U:        float64(i) / float64(n-1),
				V:        float64(j) / float64(n-1),
			})
		}
	}
	return pts
}

func newField(t *testing.T) *Field {
	t.Helper()
	f, err := New(DefaultParams(), rand.New(rand.NewSource(7)))
	test.That(t, err, test.ShouldBeNil)
	f.SetPoints(grid(11, 0.1), 0.1)
	return f
}

func TestNewRejectsBadColor(t *testing.T) {
	p := DefaultParams()
	p.MidColor = "orange"
	_, err := New(p, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color stop 1")
}

func TestBuffersPreallocated(t *testing.T) {
	f := newField(t)
	test.That(t, f.Influence(), test.ShouldHaveLength, 121)
	test.That(t, f.Colors(), test.ShouldHaveLength, 363)
	test.That(t, cap(f.Influence()), test.ShouldEqual, DefaultParams().MaxPoints)
}

func TestTickWithoutPress(t *testing.T) {
	f := newField(t)
	f.SetMode(ModeLive)
	f.UpdateContact(0.2, -0.3, 0.8)
	f.Tick(16 * time.Millisecond)
	_, _, ok := f.Press()
	test.That(t, ok, test.ShouldBeTrue)

	f.UpdateContact(0.2, -0.3, 0)
	_, _, ok = f.Press()
	test.That(t, ok, test.ShouldBeFalse)

	f.Tick(16 * time.Millisecond)
	base := f.stops[0]
	for i, v := range f.Influence() {
		test.That(t, v, test.ShouldEqual, float32(0))
		test.That(t, f.Colors()[3*i], test.ShouldEqual, float32(base.r))
		test.That(t, f.Colors()[3*i+1], test.ShouldEqual, float32(base.g))
		test.That(t, f.Colors()[3*i+2], test.ShouldEqual, float32(base.b))
	}
}

func TestContactRoundTrip(t *testing.T) {
	f := newField(t)
	f.SetMode(ModeLive)

	f.UpdateContact(0, 0, 1)
	f.Tick(16 * time.Millisecond)

	center, intensity, ok := f.Press()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, intensity, test.ShouldEqual, 1.0)
	// (u, v) = (0.5, 0.5) is the middle of the grid
	test.That(t, center, test.ShouldEqual, 5*11+5)
	test.That(t, f.Influence()[center], test.ShouldEqual, float32(1))

	peak := f.stops[2]
	test.That(t, f.Colors()[3*center], test.ShouldAlmostEqual, float32(peak.r), 1e-6)
	test.That(t, f.Colors()[3*center+1], test.ShouldAlmostEqual, float32(peak.g), 1e-6)

	for i, v := range f.Influence() {
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, float32(1))
		test.That(t, v, test.ShouldBeGreaterThan, float32(0))
		if i != center {
			test.That(t, v, test.ShouldBeLessThan, float32(1))
		}
	}

	t.Run("falloff", func(t *testing.T) {
		f.UpdateContact(0, 0, 0.6)
		f.Tick(16 * time.Millisecond)
		r := 15 * 0.1
		// neighbor one pitch away
		want := 0.6 * math.Exp(-4*0.01/(r*r))
		test.That(t, float64(f.Influence()[center+1]), test.ShouldAlmostEqual, want, 1e-6)
	})
}

func TestNearestUsesGain(t *testing.T) {
	f := newField(t)
	// 0.5 * 1.2 = 0.6 maps to u = 0.8
	test.That(t, f.Nearest(0.5, 0), test.ShouldEqual, 5*11+8)
	// gained past the edge clamps to the last column
	test.That(t, f.Nearest(1, 1), test.ShouldEqual, 10*11+10)
	test.That(t, f.Nearest(-1, -1), test.ShouldEqual, 0)

	empty, err := New(DefaultParams(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Nearest(0, 0), test.ShouldEqual, -1)
}

func TestUpdateContactCapsIntensity(t *testing.T) {
	f := newField(t)
	f.SetMode(ModeLive)
	f.UpdateContact(0, 0, 3.5)
	center, intensity, ok := f.Press()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, intensity, test.ShouldEqual, 1.0)

	f.Tick(16 * time.Millisecond)
	test.That(t, f.Influence()[center], test.ShouldEqual, float32(1))
	for _, inf := range f.Influence() {
		test.That(t, inf, test.ShouldBeBetweenOrEqual, float32(0), float32(1))
	}
}

func TestUpdateContactIgnoredInDemo(t *testing.T) {
	f := newField(t)
	test.That(t, f.Mode(), test.ShouldEqual, ModeDemo)
	f.UpdateContact(0, 0, 1)
	_, _, ok := f.Press()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDemoAnimator(t *testing.T) {
	f := newField(t)
	test.That(t, f.Animation(), test.ShouldEqual, AnimIdle)

	f.Tick(time.Second)
	test.That(t, f.Animation(), test.ShouldEqual, AnimIdle)

	f.Tick(time.Second)
	test.That(t, f.Animation(), test.ShouldEqual, AnimPressing)
	center, _, ok := f.Press()
	test.That(t, ok, test.ShouldBeFalse) // zero intensity at the start of the ramp
	test.That(t, f.center, test.ShouldBeGreaterThanOrEqualTo, 0)

	f.Tick(250 * time.Millisecond)
	center, intensity, ok := f.Press()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, intensity, test.ShouldAlmostEqual, 0.5)
	test.That(t, float64(f.Influence()[center]), test.ShouldAlmostEqual, 0.5, 1e-6)

	f.Tick(250 * time.Millisecond)
	test.That(t, f.Animation(), test.ShouldEqual, AnimHolding)
	_, intensity, _ = f.Press()
	test.That(t, intensity, test.ShouldEqual, 1.0)

	f.Tick(time.Second)
	test.That(t, f.Animation(), test.ShouldEqual, AnimReleasing)

	f.Tick(500 * time.Millisecond)
	_, intensity, _ = f.Press()
	test.That(t, intensity, test.ShouldAlmostEqual, 0.5)

	f.Tick(500 * time.Millisecond)
	test.That(t, f.Animation(), test.ShouldEqual, AnimIdle)
	_, _, ok = f.Press()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, f.timer, test.ShouldBeGreaterThanOrEqualTo, 1.0)
	test.That(t, f.timer, test.ShouldBeLessThan, 3.0)
	for _, v := range f.Influence() {
		test.That(t, v, test.ShouldEqual, float32(0))
	}
}

func TestDemoDisabledWhileLive(t *testing.T) {
	f := newField(t)
	f.SetMode(ModeLive)
	for i := 0; i < 100; i++ {
		f.Tick(100 * time.Millisecond)
	}
	test.That(t, f.Animation(), test.ShouldEqual, AnimIdle)
	_, _, ok := f.Press()
	test.That(t, ok, test.ShouldBeFalse)

	// back to demo: the animator resumes after a dwell
	f.SetMode(ModeDemo)
	for i := 0; i < 31; i++ {
		f.Tick(100 * time.Millisecond)
	}
	test.That(t, f.Animation(), test.ShouldNotEqual, AnimIdle)
}

func TestDemoWithoutPoints(t *testing.T) {
	f, err := New(DefaultParams(), rand.New(rand.NewSource(1)))
	test.That(t, err, test.ShouldBeNil)
	f.Tick(5 * time.Second)
	test.That(t, f.Animation(), test.ShouldEqual, AnimIdle)
	test.That(t, f.Influence(), test.ShouldBeEmpty)
}

func TestSetPointsClearsPress(t *testing.T) {
	f := newField(t)
	f.SetMode(ModeLive)
	f.UpdateContact(0, 0, 1)
	f.SetPoints(grid(3, 0.5), 0.5)
	_, _, ok := f.Press()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, f.Influence(), test.ShouldHaveLength, 9)
	test.That(t, f.Spacing(), test.ShouldEqual, 0.5)
}
