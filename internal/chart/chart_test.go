package chart

import (
	"bytes"
	"image/png"
	"testing"

	"go.viam.com/test"

	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

func TestCollectorWindow(t *testing.T) {
	buf := fusion.NewChartBuffer(64)
	c := NewCollector(buf, 5)

	_, ok := c.Latest()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, c.Snapshot(), test.ShouldHaveLength, 5)
	test.That(t, c.Pull(), test.ShouldEqual, 0)

	for i := 1; i <= 3; i++ {
		buf.Record(fusion.Sample{Z: float64(i)})
	}
	test.That(t, c.Pull(), test.ShouldEqual, 3)
	snap := c.Snapshot()
	zs := make([]float64, len(snap))
	for i, s := range snap {
		zs[i] = s.Z
	}
	test.That(t, zs, test.ShouldResemble, []float64{0, 0, 1, 2, 3})

	for i := 4; i <= 10; i++ {
		buf.Record(fusion.Sample{Z: float64(i)})
	}
	test.That(t, c.Pull(), test.ShouldEqual, 7)
	snap = c.Snapshot()
	for i, s := range snap {
		zs[i] = s.Z
	}
	test.That(t, zs, test.ShouldResemble, []float64{6, 7, 8, 9, 10})
	last, ok := c.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, last.Z, test.ShouldEqual, 10.0)
	test.That(t, c.Total(), test.ShouldEqual, 10)
}

func TestCollectorSnapshotIsCopy(t *testing.T) {
	buf := fusion.NewChartBuffer(8)
	c := NewCollector(buf, 3)
	snap := c.Snapshot()
	snap[0].Z = 42
	test.That(t, c.Snapshot()[0].Z, test.ShouldEqual, 0.0)
}

func TestRender(t *testing.T) {
	samples := make([]fusion.Sample, 20)
	for i := range samples {
		samples[i] = fusion.Sample{X: 0.1 * float64(i%10), Y: -0.5, Z: 0.03 * float64(i), Force: 20}
	}
	opts := DefaultOptions()
	for name, fn := range map[string]func(*bytes.Buffer) error{
		"raw":      func(b *bytes.Buffer) error { return RenderRaw(b, samples, opts) },
		"force":    func(b *bytes.Buffer) error { return RenderForce(b, samples, opts) },
		"position": func(b *bytes.Buffer) error { return RenderPosition(b, samples, opts) },
	} {
		t.Run(name, func(t *testing.T) {
			var b bytes.Buffer
			test.That(t, fn(&b), test.ShouldBeNil)
			img, err := png.Decode(&b)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, img.Bounds().Dx(), test.ShouldEqual, opts.Width)
			test.That(t, img.Bounds().Dy(), test.ShouldEqual, opts.Height)
		})
	}
}

func TestRenderTooFewSamples(t *testing.T) {
	var b bytes.Buffer
	err := RenderRaw(&b, []fusion.Sample{{Z: 0.1}}, DefaultOptions())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, b.Len(), test.ShouldEqual, 0)
}
