package app

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/relabs-tech/tactile_viewer/internal/field"
	"github.com/relabs-tech/tactile_viewer/internal/frame"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/logging"
	"github.com/relabs-tech/tactile_viewer/internal/mesh"
	"github.com/relabs-tech/tactile_viewer/internal/surface"
	"github.com/relabs-tech/tactile_viewer/internal/transport"
)

const waitTimeout = 5 * time.Second

// fakeSource forwards frames and failures pushed by the test.
type fakeSource struct {
	frames chan frame.RawFrame
	fail   chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan frame.RawFrame), fail: make(chan error)}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Run(ctx context.Context, h transport.Handler) error {
	h.OnConnect()
	for {
		select {
		case <-ctx.Done():
			h.OnDisconnect(nil)
			return nil
		case f := <-s.frames:
			h.OnFrame(f)
		case err := <-s.fail:
			h.OnDisconnect(err)
			return err
		}
	}
}

type engineRecorder struct {
	NopObserver
	states   chan State
	readings chan fusion.Reading
	points   chan uuid.UUID
}

func newEngineRecorder() *engineRecorder {
	return &engineRecorder{
		states:   make(chan State, 256),
		readings: make(chan fusion.Reading, 256),
		points:   make(chan uuid.UUID, 8),
	}
}

func (r *engineRecorder) OnState(s State) {
	select {
	case r.states <- s:
	default:
	}
}

func (r *engineRecorder) OnReading(rd fusion.Reading) {
	select {
	case r.readings <- rd:
	default:
	}
}

func (r *engineRecorder) OnPoints(id uuid.UUID, _ surface.Result) {
	r.points <- id
}

func waitState(t *testing.T, ch <-chan State, what string, pred func(State) bool) State {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state: %s", what)
		}
	}
}

func testEngineConfig() EngineConfig {
	sp := surface.DefaultParams()
	sp.Spacing = 0.25
	return EngineConfig{
		Fusion:        fusion.DefaultParams(),
		Sampler:       sp,
		Field:         field.DefaultParams(),
		TickInterval:  16 * time.Millisecond,
		ChartInterval: 100 * time.Millisecond,
		ChartWindow:   10,
		ViewDirection: r3.Vector{Z: 1},
	}
}

// startEngine runs e until the returned stop is called or the test ends.
func startEngine(t *testing.T, e *Engine) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var (
		once sync.Once
		err  error
	)
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-done:
			case <-time.After(waitTimeout):
				err = errors.New("engine did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { stop() })
	return stop
}

func TestParseCommand(t *testing.T) {
	for _, s := range []string{"connect", "disconnect", "calibrate", "resample"} {
		cmd, err := ParseCommand(s)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(cmd), test.ShouldEqual, s)
	}
	_, err := ParseCommand("reboot")
	test.That(t, errors.Is(err, ErrUnknownCommand), test.ShouldBeTrue)
}

func TestEngineRejectsBadConfig(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TickInterval = 0
	_, err := NewEngine(cfg, nil, nil, clock.NewMock(), nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	cfg = testEngineConfig()
	cfg.Fusion.ChipMap = [frame.Sensors]int{0, 0, 1, 2}
	_, err = NewEngine(cfg, nil, nil, clock.NewMock(), nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEngineSubmitBusy(t *testing.T) {
	e, err := NewEngine(testEngineConfig(), nil, nil, clock.NewMock(), nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < commandBuffer; i++ {
		test.That(t, e.Submit(CmdResample), test.ShouldBeNil)
	}
	test.That(t, e.Submit(CmdResample), test.ShouldEqual, ErrBusy)
}

func TestEngineLifecycle(t *testing.T) {
	params := fusion.DefaultParams()
	clk := clock.NewMock()
	rec := newEngineRecorder()
	src := newFakeSource()

	e, err := NewEngine(testEngineConfig(), nil, func() transport.Source { return src },
		clk, rand.New(rand.NewSource(1)), logging.NewTestLogger(t), rec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.State().Status, test.ShouldEqual, StatusVirtual)
	test.That(t, e.State().Mode, test.ShouldEqual, "demo")

	stop := startEngine(t, e)
	waitState(t, rec.states, "virtual", func(s State) bool { return s.Status == StatusVirtual })

	t.Run("calibrate needs a device", func(t *testing.T) {
		test.That(t, e.Submit(CmdCalibrate), test.ShouldBeNil)
		s := waitState(t, rec.states, "refusal", func(s State) bool { return s.Message == "connect a device before calibrating" })
		test.That(t, s.Status, test.ShouldEqual, StatusVirtual)
	})

	mock := transport.NewMockSource(params, 100, clk, rand.New(rand.NewSource(2)))

	t.Run("connect calibrates then goes live", func(t *testing.T) {
		test.That(t, e.Submit(CmdConnect), test.ShouldBeNil)
		s := waitState(t, rec.states, "calibrating", func(s State) bool { return s.Status == StatusCalibrating })
		test.That(t, s.Mode, test.ShouldEqual, "live")
		test.That(t, s.Source, test.ShouldEqual, "fake")
		test.That(t, s.Needed, test.ShouldEqual, params.ZeroFrames)

		for i := 0; i < params.ZeroFrames; i++ {
			src.frames <- mock.FrameAt(time.Duration(i) * 10 * time.Millisecond)
		}
		s = waitState(t, rec.states, "connected", func(s State) bool { return s.Status == StatusConnected })
		test.That(t, s.Calibration, test.ShouldEqual, "ready")
		test.That(t, s.Mode, test.ShouldEqual, "live")
	})

	t.Run("press produces a reading", func(t *testing.T) {
		// middle of the first hold phase
		src.frames <- mock.FrameAt(1700 * time.Millisecond)
		select {
		case r := <-rec.readings:
			test.That(t, r.Intensity, test.ShouldBeGreaterThan, 0)
			test.That(t, math.Abs(r.X-mock.Target().X), test.ShouldBeLessThan, 0.15)
			test.That(t, math.Abs(r.Y-mock.Target().Y), test.ShouldBeLessThan, 0.15)
		case <-time.After(waitTimeout):
			t.Fatal("no reading")
		}
	})

	t.Run("disconnect returns to demo", func(t *testing.T) {
		test.That(t, e.Submit(CmdDisconnect), test.ShouldBeNil)
		s := waitState(t, rec.states, "disconnected", func(s State) bool { return s.Status == StatusDisconnected })
		test.That(t, s.Mode, test.ShouldEqual, "demo")
		test.That(t, s.Source, test.ShouldBeEmpty)
		test.That(t, s.Contact, test.ShouldResemble, fusion.Reading{})
	})

	t.Run("port lost", func(t *testing.T) {
		test.That(t, e.Submit(CmdConnect), test.ShouldBeNil)
		waitState(t, rec.states, "calibrating again", func(s State) bool { return s.Status == StatusCalibrating })

		src.fail <- errors.New("port lost")
		s := waitState(t, rec.states, "disconnected", func(s State) bool { return s.Status == StatusDisconnected })
		test.That(t, s.Message, test.ShouldContainSubstring, "port lost")
	})

	test.That(t, stop(), test.ShouldBeNil)
	test.That(t, e.Submit(CmdConnect), test.ShouldEqual, ErrStopped)
}

func TestEngineSamplesScene(t *testing.T) {
	rec := newEngineRecorder()
	scene := mesh.NewNode("plane", mesh.NewPlane(2, 2, 2, 2))

	e, err := NewEngine(testEngineConfig(), scene, nil, clock.NewMock(), rand.New(rand.NewSource(1)), logging.NewTestLogger(t), rec)
	test.That(t, err, test.ShouldBeNil)
	startEngine(t, e)

	var first uuid.UUID
	select {
	case first = <-rec.points:
	case <-time.After(waitTimeout):
		t.Fatal("no point set")
	}
	s := waitState(t, rec.states, "points", func(s State) bool { return s.Points > 0 && !s.Sampling })
	test.That(t, s.JobID, test.ShouldEqual, first.String())
	test.That(t, s.Spacing, test.ShouldAlmostEqual, 0.25)

	test.That(t, e.Submit(CmdResample), test.ShouldBeNil)
	select {
	case second := <-rec.points:
		test.That(t, second, test.ShouldNotEqual, first)
	case <-time.After(waitTimeout):
		t.Fatal("no second point set")
	}

	t.Run("connect without a source", func(t *testing.T) {
		test.That(t, e.Submit(CmdConnect), test.ShouldBeNil)
		waitState(t, rec.states, "no source", func(s State) bool { return s.Message == "no frame source configured" })
	})
}
