// Package engine glues the detector, controller, mode state machine, command
// limiter and transport into the navigation control loop.
package engine

import (
	"context"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/control"
	"github.com/swdee/go-visnav/detector"
	"github.com/swdee/go-visnav/mode"
	"github.com/swdee/go-visnav/preprocess"
	"github.com/swdee/go-visnav/telemetry"
	"github.com/swdee/go-visnav/tracker"
	"github.com/swdee/go-visnav/transport"
	"github.com/swdee/go-visnav/wire"
	"gocv.io/x/gocv"
	"sync"
	"time"
)

const (
	// DefaultReconnectInterval is how often a lost link is reconnected
	DefaultReconnectInterval = 2 * time.Second
	// idleDelay is slept after a failed frame read so a finished source does
	// not spin the loop
	idleDelay = 10 * time.Millisecond
	// flushTimeout bounds the wait for the final stop command on shutdown
	flushTimeout = time.Second
)

// FrameSource supplies camera frames, it is satisfied by *gocv.VideoCapture
type FrameSource interface {
	Read(m *gocv.Mat) bool
}

// Renderer draws the outcome of a tick.  It runs on the control loop and may
// return an operator event such as a key press read from a window.
type Renderer interface {
	Render(frame *gocv.Mat, rep Report) (mode.Event, bool)
}

// Report is the outcome of a single control tick
type Report struct {
	Tick      uint64
	At        time.Time
	Detector  string
	Detection visnav.DetectionResult
	// Auto is the controller output before arbitration
	Auto visnav.ControlSignal
	// Signal is the arbitrated signal that was encoded
	Signal visnav.ControlSignal
	Mode   mode.Mode
	LED    bool
	// Commands are the encoded values of every channel
	Commands []wire.Command
	// Sent are the commands dispatched this tick after rate limiting
	Sent []wire.Command
	// Transmitted is false when the link was unavailable or a send failed
	Transmitted bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// WithRenderer adds a render hook called after every tick
func WithRenderer(r Renderer) Option {
	return func(e *Engine) {
		e.renderers = append(e.renderers, r)
	}
}

// WithMetrics publishes tick values to the telemetry metrics
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDecoupledDetection runs frame acquisition and detection in their own
// goroutine, the control loop always acts on the most recent detection
func WithDecoupledDetection() Option {
	return func(e *Engine) {
		e.decoupled = true
	}
}

// WithReconnectInterval sets how often a lost link is reconnected, zero
// disables reconnection
func WithReconnectInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.reconnectEvery = d
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine is the navigation control loop.  The mode machine, limiter and
// controller are owned by the loop and only touched from it.
type Engine struct {
	cfg       *config.Config
	l         hclog.Logger
	registry  *detector.Registry
	ctrl      *control.Controller
	machine   *mode.Machine
	limiter   *wire.Limiter
	link      transport.Adapter
	pipeline  *preprocess.Pipeline
	trail     *tracker.Trail
	metrics   *telemetry.Metrics
	renderers []Renderer

	decoupled      bool
	reconnectEvery time.Duration
	connectTimeout time.Duration
	now            func() time.Time

	// scaled holds the preprocessed frame given to the detector
	scaled gocv.Mat
	linkUp bool
	ticks  uint64
	last   Report

	// display is the latest frame captured by the detection goroutine
	displayMu sync.Mutex
	display   gocv.Mat
}

// New returns an engine for the validated configuration driving link with the
// detectors in reg
func New(cfg *config.Config, reg *detector.Registry, link transport.Adapter,
	opts ...Option) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if reg == nil || reg.Active() == nil {
		return nil, fmt.Errorf("%w: no detector registered", config.ErrInvalidConfiguration)
	}

	if link == nil {
		return nil, fmt.Errorf("%w: no transport", config.ErrInvalidConfiguration)
	}

	pipeline, err := preprocess.FromConfig(cfg.Camera)

	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:            cfg,
		l:              hclog.NewNullLogger(),
		registry:       reg,
		ctrl:           control.New(control.ParamsFromConfig(cfg.Navigation)),
		limiter:        wire.NewLimiter(cfg.Navigation.SendInterval.D()),
		link:           link,
		pipeline:       pipeline,
		trail:          tracker.NewTrail(cfg.Viewer.Trail),
		reconnectEvery: DefaultReconnectInterval,
		connectTimeout: cfg.Transport.ConnectTimeout.D(),
		now:            time.Now,
		scaled:         gocv.NewMat(),
		display:        gocv.NewMat(),
	}

	for _, opt := range opts {
		opt(e)
	}

	mp, err := mode.ParamsFromConfig(cfg.Navigation)

	if err != nil {
		e.Close()
		return nil, err
	}

	e.machine = mode.New(mp, mode.WithLogger(e.l.Named("mode")))
	e.linkUp = link.Connected()
	e.metrics.Connected(e.linkUp)

	return e, nil
}

// AddRenderer adds a render hook, it must be called before Run
func (e *Engine) AddRenderer(r Renderer) {
	e.renderers = append(e.renderers, r)
}

// Machine returns the mode state machine
func (e *Engine) Machine() *mode.Machine {
	return e.machine
}

// Trail returns the history of target centers
func (e *Engine) Trail() *tracker.Trail {
	return e.trail
}

// Registry returns the detector registry
func (e *Engine) Registry() *detector.Registry {
	return e.registry
}

// Last returns the report of the most recent tick
func (e *Engine) Last() Report {
	return e.last
}

// Close releases the frame buffers, it does not close the detectors or the
// link
func (e *Engine) Close() error {
	e.scaled.Close()
	e.display.Close()
	return e.pipeline.Close()
}

// HandleEvent applies an operator event.  NextDetector switches the active
// detector, every other event is given to the mode state machine.
func (e *Engine) HandleEvent(ev mode.Event, now time.Time) {

	if ev == mode.NextDetector {
		d := e.registry.Next()
		e.trail.Reset()
		e.l.Info("Detector switched", "name", d.Name())
		return
	}

	e.machine.Handle(ev, now)
}

// detect runs the active detector on a frame, an empty frame is a tick
// without detection
func (e *Engine) detect(frame gocv.Mat) visnav.DetectionResult {

	if frame.Empty() {
		return visnav.NoDetection(0, 0)
	}

	src := frame

	if !e.pipeline.Passthrough() {
		e.pipeline.Process(frame, &e.scaled)
		src = e.scaled
	}

	return e.registry.Active().Detect(src)
}

// Tick runs detection on the frame followed by a control step
func (e *Engine) Tick(frame gocv.Mat, now time.Time) Report {
	return e.Step(e.detect(frame), now)
}

// Step runs one control tick for a detection: control, mode arbitration,
// quantization, rate limiting and dispatch.  A link that is unavailable
// leaves the commands computed but not transmitted.
func (e *Engine) Step(det visnav.DetectionResult, now time.Time) Report {

	e.ticks++
	e.metrics.Tick()
	e.checkLink(now)

	e.machine.Observe(det.Detected, now)

	auto := e.ctrl.Compute(det)
	sig := e.machine.Select(auto)
	led := e.machine.LED()

	cmds := wire.Commands(sig, led)
	e.limiter.OfferAll(cmds)

	rep := Report{
		Tick:        e.ticks,
		At:          now,
		Detector:    e.registry.Active().Name(),
		Detection:   det,
		Auto:        auto,
		Signal:      sig,
		Mode:        e.machine.Mode(),
		LED:         led,
		Commands:    cmds,
		Transmitted: e.linkUp,
	}

	if e.linkUp {
		rep.Sent, rep.Transmitted = e.dispatch(e.limiter.Due(now), now)
	} else {
		e.l.Trace("Commands not transmitted", "err", transport.ErrLinkUnavailable)
	}

	if det.Detected {
		id := tracker.NoID
		if v, ok := det.ID(); ok {
			id = v
		}
		e.trail.Retain(id)
		e.trail.Add(id, det.CenterX, det.CenterY)
	}

	e.metrics.UpdateInput(det)
	e.metrics.UpdateOutput(rep.Mode, sig)

	e.last = rep
	return rep
}

// checkLink detects link state changes.  Losing the link raises LinkLost,
// regaining it forgets the sent values so every channel is refreshed.
func (e *Engine) checkLink(now time.Time) {

	up := e.link.Connected()

	if up == e.linkUp {
		return
	}

	e.linkUp = up
	e.metrics.Connected(up)

	if up {
		e.l.Info("Link restored", "link", e.link.Name())
		e.limiter.Reset()
		return
	}

	e.l.Warn("Link lost", "link", e.link.Name())
	e.machine.Handle(mode.LinkLost, now)
}

// dispatch sends the commands, only successful sends are committed to the
// limiter so failures are retried next tick
func (e *Engine) dispatch(cmds []wire.Command, now time.Time) ([]wire.Command, bool) {

	var sent []wire.Command
	ok := true

	for _, cmd := range cmds {

		if err := transport.Dispatch(e.link, cmd); err != nil {
			e.l.Debug("Command not transmitted", "cmd", cmd.String(), "err", err)
			ok = false
			continue
		}

		e.limiter.MarkSent(cmd, now)
		sent = append(sent, cmd)
		e.l.Trace("Command sent", "cmd", cmd.String())
	}

	e.metrics.Sent(len(sent))
	e.metrics.Failed(len(cmds) - len(sent))

	return sent, ok
}

// flusher is implemented by links that write asynchronously
type flusher interface {
	Flush(ctx context.Context) bool
}

// Shutdown sends a final neutral command on every channel regardless of the
// rate limit and waits for an asynchronous link to deliver it
func (e *Engine) Shutdown(ctx context.Context) {

	now := e.now()
	e.limiter.OfferAll(wire.Commands(visnav.Neutral, e.machine.LED()))

	if !e.link.Connected() {
		e.l.Warn("Final stop not transmitted", "err", transport.ErrLinkUnavailable)
		return
	}

	sent, ok := e.dispatch(e.limiter.Pending(), now)

	if f, isAsync := e.link.(flusher); isAsync {
		fctx, cancel := context.WithTimeout(ctx, flushTimeout)
		defer cancel()

		if !f.Flush(fctx) {
			ok = false
		}
	}

	if !ok {
		e.l.Warn("Final stop partially transmitted", "sent", len(sent))
		return
	}

	e.l.Info("Final stop transmitted")
}
