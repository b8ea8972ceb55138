package app

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/chart"
	"github.com/relabs-tech/tactile_viewer/internal/field"
	"github.com/relabs-tech/tactile_viewer/internal/frame"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/mesh"
	"github.com/relabs-tech/tactile_viewer/internal/surface"
	"github.com/relabs-tech/tactile_viewer/internal/transport"
)

// Status is the connection state shown to users.
type Status string

const (
	StatusVirtual      Status = "virtual"
	StatusCalibrating  Status = "calibrating"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Command is a control request executed by the frame loop.
type Command string

const (
	CmdConnect    Command = "connect"
	CmdDisconnect Command = "disconnect"
	CmdCalibrate  Command = "calibrate"
	CmdResample   Command = "resample"
)

var (
	// ErrBusy is returned by Submit when the command queue is full.
	ErrBusy           = errors.New("engine: command queue full")
	ErrUnknownCommand = errors.New("engine: unknown command")
	ErrStopped        = errors.New("engine: stopped")
)

// ParseCommand validates a command received from a client.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CmdConnect, CmdDisconnect, CmdCalibrate, CmdResample:
		return c, nil
	}
	return "", errors.Wrapf(ErrUnknownCommand, "%q", s)
}

// State is a snapshot of the engine for status endpoints.
type State struct {
	Status      Status         `json:"status"`
	Source      string         `json:"source,omitempty"`
	Calibration string         `json:"calibration"`
	Collected   int            `json:"collected"`
	Needed      int            `json:"needed"`
	Contact     fusion.Reading `json:"contact"`
	Mode        string         `json:"mode"`
	Points      int            `json:"points"`
	Spacing     float64        `json:"spacing"`
	JobID       string         `json:"job_id,omitempty"`
	Sampling    bool           `json:"sampling"`
	Message     string         `json:"message"`

	FramesDropped uint64 `json:"frames_dropped"`
	Uncalibrated  uint64 `json:"frames_uncalibrated"`
}

// Observer is notified from the frame loop goroutine and must not block.
type Observer interface {
	OnState(s State)
	OnReading(r fusion.Reading)
	OnPoints(id uuid.UUID, res surface.Result)
	// OnTick receives the field after it was advanced. Its buffers are only
	// valid for the duration of the call.
	OnTick(f *field.Field, r fusion.Reading)
}

// NopObserver ignores everything; embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnState(State) {}

func (NopObserver) OnReading(fusion.Reading) {}

func (NopObserver) OnPoints(uuid.UUID, surface.Result) {}

func (NopObserver) OnTick(*field.Field, fusion.Reading) {}

// EngineConfig holds everything the engine needs besides its collaborators.
type EngineConfig struct {
	Fusion        fusion.Params
	Sampler       surface.Params
	Field         field.Params
	TickInterval  time.Duration
	ChartInterval time.Duration
	ChartWindow   int
	ViewDirection r3.Vector
	// AutoConnect opens the source when Run starts.
	AutoConnect bool
}

type eventKind int

const (
	evConnected eventKind = iota
	evFrame
	evDisconnected
)

type event struct {
	kind  eventKind
	gen   int
	frame frame.RawFrame
	err   error
}

const (
	eventBuffer   = 256
	commandBuffer = 8
)

// Engine owns calibration, fusion, the pressure field and surface sampling,
// and runs them on a single goroutine.
type Engine struct {
	cfg       EngineConfig
	clock     clock.Clock
	logger    *zap.SugaredLogger
	newSource func() transport.Source
	scene     *mesh.Node
	viewpoint r3.Vector
	observers []Observer

	calib     *fusion.Calibrator
	pipeline  *fusion.Pipeline
	chartBuf  *fusion.ChartBuffer
	collector *chart.Collector
	field     *field.Field
	sampler   *surface.Sampler

	events   chan event
	commands chan Command
	done     chan struct{}

	// owned by the Run goroutine
	status     Status
	gen        int
	stopSource context.CancelFunc
	sourceDone chan struct{}
	sourceName string
	job        *surface.Job
	lastTick   time.Time
	latest     fusion.Reading
	message    string
	jobID      string
	points     int
	spacing    float64

	dropped      atomic.Uint64
	uncalibrated atomic.Uint64
	mu           sync.RWMutex
	state        State
}

// NewEngine wires an engine. scene may be nil for headless use; newSource is
// called on every connect.
func NewEngine(
	cfg EngineConfig,
	scene *mesh.Node,
	newSource func() transport.Source,
	clk clock.Clock,
	rng *rand.Rand,
	logger *zap.SugaredLogger,
	observers ...Observer,
) (*Engine, error) {
	if err := cfg.Fusion.Validate(); err != nil {
		return nil, errors.Wrap(err, "fusion params")
	}
	if cfg.TickInterval <= 0 || cfg.ChartInterval <= 0 {
		return nil, errors.New("tick and chart intervals must be positive")
	}
	fld, err := field.New(cfg.Field, rng)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	e := &Engine{
		cfg:       cfg,
		clock:     clk,
		logger:    logger,
		newSource: newSource,
		scene:     scene,
		observers: observers,
		calib:     fusion.NewCalibrator(cfg.Fusion),
		chartBuf:  fusion.NewChartBuffer(4 * max(cfg.ChartWindow, 2)),
		field:     fld,
		sampler:   surface.NewSampler(cfg.Sampler, logger),
		events:    make(chan event, eventBuffer),
		commands:  make(chan Command, commandBuffer),
		done:      make(chan struct{}),
		status:    StatusVirtual,
		message:   "no device, showing demo",
	}
	e.pipeline = fusion.NewPipeline(cfg.Fusion, e.calib, e.chartBuf)
	e.collector = chart.NewCollector(e.chartBuf, cfg.ChartWindow)
	if scene != nil {
		e.viewpoint = surface.DefaultViewpoint(scene.Flatten().Bounds(), cfg.ViewDirection)
	}
	e.field.SetMode(field.ModeDemo)
	e.snapshot()
	return e, nil
}

// Chart returns the rolling chart windows.
func (e *Engine) Chart() *chart.Collector { return e.collector }

// State returns the latest snapshot.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Submit queues a command for the frame loop.
func (e *Engine) Submit(cmd Command) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

// Run processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()
	defer close(e.done)

	tick := e.clock.Ticker(e.cfg.TickInterval)
	defer tick.Stop()
	chartTick := e.clock.Ticker(e.cfg.ChartInterval)
	defer chartTick.Stop()
	e.lastTick = e.clock.Now()

	e.startJob(ctx)
	if e.cfg.AutoConnect {
		e.connect(ctx)
	}
	e.publishState()

	for {
		var jobDone <-chan struct{}
		if e.job != nil {
			jobDone = e.job.Done()
		}
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.events:
			e.handleEvent(ev)
		case cmd := <-e.commands:
			e.handleCommand(ctx, cmd)
		case <-jobDone:
			e.finishJob()
		case now := <-tick.C:
			e.tick(now)
		case <-chartTick.C:
			e.collector.Pull()
		}
	}
}

func (e *Engine) shutdown() {
	if e.job != nil {
		e.job.Cancel()
	}
	if e.stopSource != nil {
		e.stopSource()
		<-e.sourceDone
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd Command) {
	e.logger.Debugw("command", "command", cmd, "status", e.status)
	switch cmd {
	case CmdConnect:
		e.connect(ctx)
	case CmdDisconnect:
		if e.stopSource == nil {
			e.message = "not connected"
			break
		}
		e.message = "disconnecting"
		e.stopSource()
	case CmdCalibrate:
		if e.status != StatusConnected && e.status != StatusCalibrating {
			e.message = "connect a device before calibrating"
			break
		}
		e.startCalibration()
	case CmdResample:
		e.startJob(ctx)
	}
	e.publishState()
}

func (e *Engine) connect(ctx context.Context) {
	if e.stopSource != nil {
		e.message = "already connected to " + e.sourceName
		return
	}
	if e.newSource == nil {
		e.message = "no frame source configured"
		return
	}
	e.gen++
	src := e.newSource()
	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.stopSource, e.sourceDone, e.sourceName = cancel, done, src.Name()
	e.message = "connecting to " + e.sourceName

	h := &sourceHandler{e: e, gen: e.gen}
	go func() {
		defer close(done)
		if err := src.Run(sctx, h); err != nil {
			e.logger.Warnw("frame source stopped", "source", src.Name(), "error", err)
		}
	}()
}

func (e *Engine) handleEvent(ev event) {
	if ev.gen != e.gen {
		return
	}
	switch ev.kind {
	case evConnected:
		e.logger.Infow("source connected", "source", e.sourceName)
		e.startCalibration()
		e.publishState()
	case evFrame:
		e.handleFrame(ev.frame)
	case evDisconnected:
		if e.stopSource != nil {
			e.stopSource()
			e.stopSource = nil
		}
		e.latest = fusion.Reading{}
		msg := "disconnected from " + e.sourceName
		if ev.err != nil {
			msg += ": " + ev.err.Error()
		}
		e.message = msg
		e.setStatus(StatusDisconnected)
		e.logger.Infow("source disconnected", "source", e.sourceName, "error", ev.err)
		e.publishState()
	}
}

func (e *Engine) startCalibration() {
	e.calib.StartCalibration()
	e.latest = fusion.Reading{}
	e.message = "calibrating, keep the pad unloaded"
	e.setStatus(StatusCalibrating)
}

func (e *Engine) handleFrame(f frame.RawFrame) {
	if e.calib.Calibrating() {
		if e.calib.AddSample(f) {
			report := e.calib.Report()
			e.logger.Infow("baseline ready", "mean_z", report.MeanZ, "stddev_z", report.StdDevZ, "gated", report.Gated)
			e.message = "calibrated"
			e.setStatus(StatusConnected)
		}
		e.publishState()
		return
	}
	r, err := e.pipeline.Process(f)
	if err != nil {
		e.uncalibrated.Add(1)
		return
	}
	e.latest = r
	e.field.UpdateContact(r.X, r.Y, r.Intensity)
	for _, o := range e.observers {
		o.OnReading(r)
	}
}

// setStatus moves the status machine and switches the field between demo
// animation and live contact.
func (e *Engine) setStatus(s Status) {
	e.status = s
	switch s {
	case StatusCalibrating, StatusConnected:
		e.field.SetMode(field.ModeLive)
	default:
		e.field.SetMode(field.ModeDemo)
	}
}

func (e *Engine) startJob(ctx context.Context) {
	if e.scene == nil {
		return
	}
	if e.job != nil {
		e.job.Cancel()
	}
	e.job = surface.Start(ctx, e.sampler, e.scene, e.viewpoint)
	e.jobID = e.job.ID.String()
	e.message = "sampling surface"
	e.logger.Infow("sampling started", "job", e.jobID)
}

func (e *Engine) finishJob() {
	job := e.job
	e.job = nil
	res, err := job.Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.message = "sampling failed: " + err.Error()
			e.logger.Warnw("sampling failed", "job", job.ID, "error", err)
		}
		e.publishState()
		return
	}
	e.field.SetPoints(res.Points, res.Spacing)
	e.points, e.spacing = len(res.Points), res.Spacing
	e.message = res.Message()
	for _, o := range e.observers {
		o.OnPoints(job.ID, res)
	}
	e.publishState()
}

func (e *Engine) tick(now time.Time) {
	dt := now.Sub(e.lastTick)
	e.lastTick = now
	e.field.Tick(dt)
	for _, o := range e.observers {
		o.OnTick(e.field, e.latest)
	}
	e.mu.Lock()
	e.state.Contact = e.latest
	e.state.FramesDropped = e.dropped.Load()
	e.state.Uncalibrated = e.uncalibrated.Load()
	e.mu.Unlock()
}

func (e *Engine) snapshot() State {
	collected, needed := e.calib.Progress()
	s := State{
		Status:        e.status,
		Calibration:   e.calib.State().String(),
		Collected:     collected,
		Needed:        needed,
		Contact:       e.latest,
		Mode:          e.field.Mode().String(),
		Points:        e.points,
		Spacing:       e.spacing,
		JobID:         e.jobID,
		Sampling:      e.job != nil,
		Message:       e.message,
		FramesDropped: e.dropped.Load(),
		Uncalibrated:  e.uncalibrated.Load(),
	}
	if e.stopSource != nil {
		s.Source = e.sourceName
	}
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	return s
}

func (e *Engine) publishState() {
	s := e.snapshot()
	for _, o := range e.observers {
		o.OnState(s)
	}
}

// sourceHandler forwards a source's callbacks into the frame loop, tagged
// with the connection generation so late events of an old source are ignored.
type sourceHandler struct {
	e   *Engine
	gen int
}

func (h *sourceHandler) OnConnect() {
	h.post(event{kind: evConnected, gen: h.gen})
}

func (h *sourceHandler) OnFrame(f frame.RawFrame) {
	select {
	case h.e.events <- event{kind: evFrame, gen: h.gen, frame: f}:
	default:
		h.e.dropped.Add(1)
	}
}

func (h *sourceHandler) OnDisconnect(err error) {
	h.post(event{kind: evDisconnected, gen: h.gen, err: err})
}

func (h *sourceHandler) post(ev event) {
	select {
	case h.e.events <- ev:
	case <-h.e.done:
	}
}
