package engine

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/detector"
	"github.com/swdee/go-visnav/mode"
	"github.com/swdee/go-visnav/transport"
	"github.com/swdee/go-visnav/wire"
	"go.bug.st/serial"
	"gocv.io/x/gocv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubDetector returns a fixed detection for every non empty frame
type stubDetector struct {
	name  string
	mu    sync.Mutex
	res   visnav.DetectionResult
	calls atomic.Int64
}

func (s *stubDetector) Name() string              { return s.name }
func (s *stubDetector) Kind() visnav.DistanceKind { return visnav.KindDistance }
func (s *stubDetector) Annotate(img *gocv.Mat)    {}
func (s *stubDetector) Close() error              { return nil }

func (s *stubDetector) Detect(frame gocv.Mat) visnav.DetectionResult {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res
}

func (s *stubDetector) set(res visnav.DetectionResult) {
	s.mu.Lock()
	s.res = res
	s.mu.Unlock()
}

// target returns a marker detection offset px right of center at distance cm
func target(offset, distance float64) visnav.DetectionResult {
	id := 3
	return visnav.DetectionResult{
		Detected:       true,
		CenterX:        320 + offset,
		CenterY:        240,
		DistanceMetric: distance,
		Kind:           visnav.KindDistance,
		TargetID:       &id,
		FrameWidth:     640,
		FrameHeight:    480,
	}
}

type fixture struct {
	e     *Engine
	sim   *transport.Sim
	stub  *stubDetector
	other *stubDetector
	t0    time.Time
}

func newFixture(t *testing.T, mutate func(*config.Config), opts ...Option) *fixture {

	cfg := config.Default()
	cfg.Navigation.InitialMode = "autonomous"

	if mutate != nil {
		mutate(cfg)
	}

	f := &fixture{
		sim:   transport.NewSim(nil),
		stub:  &stubDetector{name: "stub"},
		other: &stubDetector{name: "other"},
		t0:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	require.True(t, f.sim.Connect(context.Background()))

	reg, err := detector.NewRegistry(f.stub, f.other)
	require.NoError(t, err)

	opts = append([]Option{WithReconnectInterval(0)}, opts...)

	f.e, err = New(cfg, reg, f.sim, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { f.e.Close() })

	return f
}

func (f *fixture) at(ms int) time.Time {
	return f.t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestStepDispatchesAllChannels(t *testing.T) {

	f := newFixture(t, nil)

	rep := f.e.Step(target(100, 80), f.at(0))

	assert.True(t, rep.Transmitted)
	assert.Equal(t, mode.Autonomous, rep.Mode)
	assert.InDelta(t, 0.3, rep.Signal.Throttle, 1e-9)
	assert.InDelta(t, -0.3, rep.Signal.Steering, 1e-9)
	assert.Equal(t, "stub", rep.Detector)

	expected := []wire.Command{
		{Channel: wire.LED, Value: 1},
		{Channel: wire.Throttle, Value: 166},
		{Channel: wire.Steering, Value: 89},
		{Channel: wire.Omega, Value: 128},
	}

	assert.Equal(t, expected, rep.Sent)
	assert.Equal(t, expected, f.sim.Writes())

	// unchanged values are suppressed
	rep = f.e.Step(target(100, 80), f.at(500))
	assert.Empty(t, rep.Sent)
	assert.True(t, rep.Transmitted)
	assert.Len(t, f.sim.Writes(), 4)
}

func TestToggleManualOverridesPendingAutonomous(t *testing.T) {

	f := newFixture(t, nil)

	f.e.Step(target(100, 80), f.at(0))

	// autonomous steering changes within the cooldown so it is pending
	rep := f.e.Step(target(-150, 80), f.at(100))
	assert.Empty(t, rep.Sent)

	f.e.HandleEvent(mode.ToggleManual, f.at(110))
	f.e.HandleEvent(mode.SteerRight, f.at(120))

	rep = f.e.Step(target(-150, 80), f.at(300))

	assert.Equal(t, mode.ManualOverride, rep.Mode)
	assert.Equal(t, visnav.ControlSignal{Steering: 0.1}, rep.Signal)

	steering, ok := f.sim.Last(wire.Steering)
	require.True(t, ok)
	assert.Equal(t, wire.Encode(0.1), steering)

	throttle, ok := f.sim.Last(wire.Throttle)
	require.True(t, ok)
	assert.Equal(t, wire.Neutral, throttle)
}

func TestLinkUnavailable(t *testing.T) {

	f := newFixture(t, func(c *config.Config) {
		c.Navigation.PauseOnLinkLoss = true
	})

	f.e.Step(target(0, 80), f.at(0))
	require.Len(t, f.sim.Writes(), 4)

	f.sim.Disconnect()

	rep := f.e.Step(target(100, 20), f.at(300))

	assert.False(t, rep.Transmitted)
	assert.Empty(t, rep.Sent)
	assert.Len(t, f.sim.Writes(), 4)
	assert.Equal(t, mode.Paused, rep.Mode)

	// values are still computed for display
	assert.InDelta(t, -0.15, rep.Auto.Throttle, 1e-9)
	assert.Len(t, rep.Commands, 4)

	f.sim.Connect(context.Background())

	// every channel is refreshed after the link returns
	rep = f.e.Step(target(100, 20), f.at(310))

	assert.True(t, rep.Transmitted)
	assert.Len(t, rep.Sent, 4)
	assert.Len(t, f.sim.Writes(), 8)
}

// blockingPort accepts writes once the open has been released
type blockingPort struct{}

func (blockingPort) Write(b []byte) (int, error) { return len(b), nil }
func (blockingPort) Close() error                { return nil }

func TestStepNotBlockedBySlowConnect(t *testing.T) {

	opening := make(chan struct{})
	release := make(chan struct{})

	link, err := transport.NewSerial(config.Serial{Port: "/dev/ttyUSB9"}, nil,
		transport.WithPortOpener(func(string, *serial.Mode) (transport.Port, error) {
			close(opening)
			<-release
			return blockingPort{}, nil
		}))
	require.NoError(t, err)

	stub := &stubDetector{name: "stub"}
	reg, err := detector.NewRegistry(stub)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Navigation.InitialMode = "autonomous"

	e, err := New(cfg, reg, link, WithReconnectInterval(0))
	require.NoError(t, err)
	defer e.Close()

	connected := make(chan bool, 1)
	go func() {
		connected <- link.Connect(context.Background())
	}()

	<-opening

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	start := time.Now()

	rep := e.Step(target(0, 80), t0)
	assert.False(t, rep.Transmitted)

	e.Step(visnav.NoDetection(640, 480), t0.Add(time.Second))
	rep = e.Step(visnav.NoDetection(640, 480), t0.Add(2100*time.Millisecond))

	// the grace period stop still fires while the link is connecting
	assert.Equal(t, mode.EmergencyStop, rep.Mode)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	assert.True(t, <-connected)

	rep = e.Step(visnav.NoDetection(640, 480), t0.Add(2200*time.Millisecond))
	assert.True(t, rep.Transmitted)
}

func TestLinkLostWithoutPause(t *testing.T) {

	f := newFixture(t, nil)

	f.e.Step(target(0, 80), f.at(0))
	f.sim.Disconnect()

	rep := f.e.Step(target(0, 80), f.at(300))

	assert.False(t, rep.Transmitted)
	assert.Equal(t, mode.Autonomous, rep.Mode)
}

func TestFailedSendRetried(t *testing.T) {

	f := newFixture(t, nil)

	f.sim.SetFail(true)

	rep := f.e.Step(target(100, 80), f.at(0))
	assert.False(t, rep.Transmitted)
	assert.Empty(t, f.sim.Writes())

	f.sim.SetFail(false)

	// never sent so no cooldown applies
	rep = f.e.Step(target(100, 80), f.at(10))
	assert.True(t, rep.Transmitted)
	assert.Len(t, rep.Sent, 4)
}

func TestNoDetectionIsNeutral(t *testing.T) {

	f := newFixture(t, nil)

	rep := f.e.Step(visnav.NoDetection(640, 480), f.at(0))

	assert.Equal(t, visnav.Neutral, rep.Signal)
	assert.Equal(t, mode.Autonomous, rep.Mode)
}

func TestSustainedDetectionLoss(t *testing.T) {

	f := newFixture(t, nil)

	f.e.Step(target(0, 80), f.at(0))

	rep := f.e.Step(visnav.NoDetection(640, 480), f.at(1000))
	assert.Equal(t, mode.Autonomous, rep.Mode)

	rep = f.e.Step(visnav.NoDetection(640, 480), f.at(2100))
	assert.Equal(t, mode.EmergencyStop, rep.Mode)

	// stays stopped when the target reappears
	rep = f.e.Step(target(0, 80), f.at(2200))
	assert.Equal(t, mode.EmergencyStop, rep.Mode)
	assert.Equal(t, visnav.Neutral, rep.Signal)
}

func TestRateLimitAt100Hz(t *testing.T) {

	f := newFixture(t, func(c *config.Config) {
		c.Navigation.SteeringQuantization = 0
		c.Navigation.SteeringDeadZone = 0
	})

	var sentAt []time.Time

	for i := 0; i < 100; i++ {
		now := f.at(i * 10)
		rep := f.e.Step(target(float64(i), 80), now)

		for _, cmd := range rep.Sent {
			if cmd.Channel != wire.Steering {
				continue
			}

			// the value sent is the latest computed, not a stale one
			assert.Equal(t, wire.Encode(rep.Signal.Steering), cmd.Value)
			sentAt = append(sentAt, now)
		}
	}

	assert.LessOrEqual(t, len(sentAt), 4)

	for i := 1; i < len(sentAt); i++ {
		assert.GreaterOrEqual(t, sentAt[i].Sub(sentAt[i-1]), 250*time.Millisecond)
	}
}

func TestShutdownForcesNeutral(t *testing.T) {

	f := newFixture(t, nil)

	f.e.Step(target(100, 80), f.at(0))
	f.e.HandleEvent(mode.Quit, f.at(10))

	assert.True(t, f.e.Machine().Done())

	f.e.Shutdown(context.Background())

	for _, ch := range []wire.Channel{wire.Throttle, wire.Steering, wire.Omega} {
		v, ok := f.sim.Last(ch)
		require.True(t, ok)
		assert.Equal(t, wire.Neutral, v, ch.String())
	}
}

func TestShutdownLinkDown(t *testing.T) {

	f := newFixture(t, nil)

	f.sim.Disconnect()
	f.e.Shutdown(context.Background())

	assert.Empty(t, f.sim.Writes())
}

func TestShutdownAsyncLink(t *testing.T) {

	cfg := config.Default()
	sim := transport.NewSim(nil)
	sim.Connect(context.Background())

	link := transport.NewAsync(sim, nil)
	defer link.Disconnect()

	reg, err := detector.NewRegistry(&stubDetector{name: "stub"})
	require.NoError(t, err)

	e, err := New(cfg, reg, link, WithReconnectInterval(0))
	require.NoError(t, err)
	defer e.Close()

	e.Shutdown(context.Background())

	v, ok := sim.Last(wire.Throttle)
	require.True(t, ok)
	assert.Equal(t, wire.Neutral, v)
}

func TestNextDetector(t *testing.T) {

	f := newFixture(t, nil)

	f.e.Step(target(0, 80), f.at(0))
	require.NotEmpty(t, f.e.Trail().IDs())

	f.e.HandleEvent(mode.NextDetector, f.at(10))

	assert.Equal(t, "other", f.e.Registry().Active().Name())
	assert.Equal(t, mode.Autonomous, f.e.Machine().Mode())
	assert.Empty(t, f.e.Trail().IDs())
}

func TestTrailFollowsTarget(t *testing.T) {

	f := newFixture(t, nil)

	f.e.Step(target(0, 80), f.at(0))
	f.e.Step(target(10, 80), f.at(10))

	pts := f.e.Trail().GetPoints(3)
	require.Len(t, pts, 2)
	assert.Equal(t, 330, pts[1].X)
}

func TestNewRejectsInvalidConfig(t *testing.T) {

	cfg := config.Default()
	cfg.Navigation.MaxSteering = 0

	reg, err := detector.NewRegistry(&stubDetector{name: "stub"})
	require.NoError(t, err)

	_, err = New(cfg, reg, transport.NewSim(nil))
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)

	empty, err := detector.NewRegistry()
	require.NoError(t, err)

	_, err = New(config.Default(), empty, transport.NewSim(nil))
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)

	_, err = New(config.Default(), reg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
}

// frameSource returns a small frame on every read, or fails every read when
// empty is set
type frameSource struct {
	empty bool
	reads atomic.Int64
}

func (s *frameSource) Read(m *gocv.Mat) bool {
	s.reads.Add(1)

	if s.empty {
		return false
	}

	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.CopyTo(m)

	return true
}

// quitRenderer returns Quit after a number of renders
type quitRenderer struct {
	after   int
	renders int
	reports []Report
}

func (r *quitRenderer) Render(frame *gocv.Mat, rep Report) (mode.Event, bool) {
	r.renders++
	r.reports = append(r.reports, rep)

	if r.renders >= r.after {
		return mode.Quit, true
	}

	return 0, false
}

func TestRunUntilQuit(t *testing.T) {

	r := &quitRenderer{after: 3}
	f := newFixture(t, nil, WithRenderer(r))
	f.stub.set(target(100, 80))

	err := f.e.Run(context.Background(), &frameSource{}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(3), f.stub.calls.Load())
	assert.Equal(t, 3, r.renders)
	assert.InDelta(t, 0.3, r.reports[0].Signal.Throttle, 1e-9)

	v, ok := f.sim.Last(wire.Throttle)
	require.True(t, ok)
	assert.Equal(t, wire.Neutral, v)
}

func TestRunQuitEvent(t *testing.T) {

	f := newFixture(t, nil)

	events := make(chan mode.Event, 2)
	events <- mode.TogglePause
	events <- mode.Quit

	err := f.e.Run(context.Background(), &frameSource{}, events)
	require.NoError(t, err)

	assert.Equal(t, mode.Paused, f.e.Machine().Mode())
	assert.Zero(t, f.stub.calls.Load())
}

func TestRunCancelled(t *testing.T) {

	f := newFixture(t, nil)
	src := &frameSource{empty: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.e.Run(ctx, src, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Positive(t, src.reads.Load())
	assert.Zero(t, f.stub.calls.Load())
	assert.False(t, f.e.Last().Detection.Detected)

	v, ok := f.sim.Last(wire.Throttle)
	require.True(t, ok)
	assert.Equal(t, wire.Neutral, v)
}

func TestRunDecoupled(t *testing.T) {

	r := &quitRenderer{after: 3}
	f := newFixture(t, nil, WithRenderer(r), WithDecoupledDetection())
	f.stub.set(target(0, 80))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := f.e.Run(ctx, &frameSource{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, r.renders)
	assert.GreaterOrEqual(t, f.stub.calls.Load(), int64(3))

	for _, rep := range r.reports {
		assert.True(t, rep.Detection.Detected)
	}
}

func TestRunReconnects(t *testing.T) {

	f := newFixture(t, nil, WithReconnectInterval(10*time.Millisecond))
	f.sim.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	f.e.Run(ctx, &frameSource{empty: true}, nil)

	assert.True(t, f.sim.Connected())
}
