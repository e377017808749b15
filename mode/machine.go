package mode

import (
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"sync"
	"time"
)

// Transition describes a mode change
type Transition struct {
	From  Mode
	To    Mode
	Cause string
	At    time.Time
}

// Params configures the state machine
type Params struct {
	Initial Mode
	// GracePeriod is how long the target may be lost while Autonomous before
	// an emergency stop, zero disables the check
	GracePeriod     time.Duration
	PauseOnLinkLoss bool
	// ManualStep is the increment applied by the manual key events
	ManualStep float64
	// ManualScale scales the manual values per channel before dispatch
	ManualScale visnav.ControlSignal
	// LED is the initial LED state
	LED bool
}

// ParamsFromConfig builds state machine parameters from the navigation config
func ParamsFromConfig(n config.Navigation) (Params, error) {

	initial, err := Parse(n.InitialMode)

	if err != nil {
		return Params{}, err
	}

	return Params{
		Initial:         initial,
		GracePeriod:     n.DetectionGracePeriod.D(),
		PauseOnLinkLoss: n.PauseOnLinkLoss,
		ManualStep:      n.ManualStep,
		ManualScale: visnav.ControlSignal{
			Throttle: n.ManualScale.Throttle,
			Steering: n.ManualScale.Steering,
			Omega:    n.ManualScale.Omega,
		},
		LED: true,
	}, nil
}

// Option configures a Machine
type Option func(*Machine)

// WithLogger sets the logger used to report transitions
func WithLogger(l hclog.Logger) Option {
	return func(m *Machine) {
		m.l = l
	}
}

// WithTransitionHook registers a function called after every mode change
func WithTransitionHook(fn func(Transition)) Option {
	return func(m *Machine) {
		m.hooks = append(m.hooks, fn)
	}
}

// Machine is the navigation mode state machine.  It is the single authority
// on which signal is dispatched each tick.
type Machine struct {
	sync.Mutex
	p Params
	l hclog.Logger

	mode Mode
	// prior is the mode to return to when leaving ManualOverride
	prior  Mode
	manual visnav.ControlSignal
	led    bool
	quit   bool

	// lastSeen is when the target was last detected while Autonomous
	lastSeen time.Time

	hooks []func(Transition)
}

// New returns a state machine in the configured initial mode
func New(p Params, opts ...Option) *Machine {

	if p.Initial == 0 {
		p.Initial = Paused
	}

	if p.ManualStep <= 0 {
		p.ManualStep = 0.1
	}

	if p.ManualScale == visnav.Neutral {
		p.ManualScale = visnav.ControlSignal{Throttle: 1, Steering: 1, Omega: 1}
	}

	m := &Machine{
		p:     p,
		l:     hclog.NewNullLogger(),
		mode:  p.Initial,
		prior: Paused,
		led:   p.LED,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Mode returns the current mode
func (m *Machine) Mode() Mode {
	m.Lock()
	defer m.Unlock()
	return m.mode
}

// LED returns the current LED state
func (m *Machine) LED() bool {
	m.Lock()
	defer m.Unlock()
	return m.led
}

// Manual returns the raw manual values
func (m *Machine) Manual() visnav.ControlSignal {
	m.Lock()
	defer m.Unlock()
	return m.manual
}

// Done returns true once Quit has been received
func (m *Machine) Done() bool {
	m.Lock()
	defer m.Unlock()
	return m.quit
}

// Handle applies an event.  It returns true if the mode changed.  Events
// that are not meaningful in the current mode are ignored.
func (m *Machine) Handle(ev Event, now time.Time) bool {

	m.Lock()
	var tr *Transition

	switch ev {
	case ThrottleUp, ThrottleDown, SteerLeft, SteerRight, OmegaLeft, OmegaRight:
		if m.mode == ManualOverride {
			m.stepManual(ev)
		}

	case ToggleLED:
		m.led = !m.led

	case ToggleManual:
		switch m.mode {
		case ManualOverride:
			tr = m.set(m.prior, ev, now)
		case Autonomous, Paused:
			m.prior = m.mode
			m.manual = visnav.Neutral
			tr = m.set(ManualOverride, ev, now)
		}

	case TogglePause:
		switch m.mode {
		case Autonomous:
			tr = m.set(Paused, ev, now)
		case Paused:
			tr = m.set(Autonomous, ev, now)
		case EmergencyStop:
			tr = m.set(Paused, ev, now)
		}

	case Stop:
		m.manual = visnav.Neutral
		if m.mode != EmergencyStop {
			tr = m.set(EmergencyStop, ev, now)
		}

	case Resume:
		if m.mode == EmergencyStop {
			tr = m.set(Autonomous, ev, now)
		}

	case LinkLost:
		if m.mode == Autonomous && m.p.PauseOnLinkLoss {
			tr = m.set(Paused, ev, now)
		}

	case Quit:
		m.quit = true
		m.manual = visnav.Neutral

	case NextDetector:
		// handled by the engine, the mode is unaffected
	}

	m.Unlock()

	if tr != nil {
		m.notify(*tr)
		return true
	}

	return false
}

// Observe records whether the target was detected on this tick.  While
// Autonomous, losing the target for longer than the grace period triggers an
// emergency stop.  It returns true if the mode changed.
func (m *Machine) Observe(detected bool, now time.Time) bool {

	m.Lock()

	if m.mode != Autonomous {
		m.Unlock()
		return false
	}

	if detected || m.lastSeen.IsZero() {
		m.lastSeen = now
		m.Unlock()
		return false
	}

	if m.p.GracePeriod <= 0 || now.Sub(m.lastSeen) <= m.p.GracePeriod {
		m.Unlock()
		return false
	}

	tr := m.setCause(EmergencyStop, "target lost", now)
	m.Unlock()

	m.notify(*tr)
	return true
}

// SetManual sets the raw manual values from an analog input source, each
// value is clamped to [-1.0, 1.0]
func (m *Machine) SetManual(throttle, steering, omega float64) {
	m.Lock()
	defer m.Unlock()

	m.manual = visnav.ControlSignal{
		Throttle: throttle,
		Steering: steering,
		Omega:    omega,
	}.Clamped()
}

// Select returns the signal to dispatch this tick given the controller output
// auto.  Autonomous passes the controller output through, ManualOverride
// returns the scaled manual values and every other mode returns Neutral.
func (m *Machine) Select(auto visnav.ControlSignal) visnav.ControlSignal {
	m.Lock()
	defer m.Unlock()

	if m.quit {
		return visnav.Neutral
	}

	switch m.mode {
	case Autonomous:
		auto.Omega = 0
		return auto.Clamped()

	case ManualOverride:
		return visnav.ControlSignal{
			Throttle: m.manual.Throttle * m.p.ManualScale.Throttle,
			Steering: m.manual.Steering * m.p.ManualScale.Steering,
			Omega:    m.manual.Omega * m.p.ManualScale.Omega,
		}.Clamped()

	default:
		return visnav.Neutral
	}
}

// stepManual adjusts the manual values, caller must hold the lock
func (m *Machine) stepManual(ev Event) {

	step := m.p.ManualStep

	switch ev {
	case ThrottleUp:
		m.manual.Throttle += step
	case ThrottleDown:
		m.manual.Throttle -= step
	case SteerLeft:
		m.manual.Steering -= step
	case SteerRight:
		m.manual.Steering += step
	case OmegaLeft:
		m.manual.Omega -= step
	case OmegaRight:
		m.manual.Omega += step
	}

	m.manual = m.manual.Clamped()
}

// set changes mode because of an event, caller must hold the lock
func (m *Machine) set(to Mode, ev Event, now time.Time) *Transition {
	return m.setCause(to, ev.String(), now)
}

func (m *Machine) setCause(to Mode, cause string, now time.Time) *Transition {

	from := m.mode

	if from == to {
		return nil
	}

	m.mode = to

	if to == Autonomous {
		// restart the detection loss timer
		m.lastSeen = now
	}

	return &Transition{From: from, To: to, Cause: cause, At: now}
}

// notify logs the transition and calls the hooks without holding the lock
func (m *Machine) notify(tr Transition) {

	if tr.To == EmergencyStop {
		m.l.Warn("mode transition", "from", tr.From, "to", tr.To, "cause", tr.Cause)
	} else {
		m.l.Info("mode transition", "from", tr.From, "to", tr.To, "cause", tr.Cause)
	}

	for _, fn := range m.hooks {
		fn(tr)
	}
}
