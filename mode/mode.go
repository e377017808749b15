// Package mode implements the navigation mode state machine which decides
// which control signal is dispatched on each tick.
package mode

import (
	"fmt"
	"strings"
)

// Mode is the current navigation mode
type Mode int

const (
	Autonomous Mode = iota + 1
	Paused
	ManualOverride
	EmergencyStop
)

// String returns the mode name as shown on the HUD
func (m Mode) String() string {
	switch m {
	case Autonomous:
		return "AUTONOMOUS"
	case Paused:
		return "PAUSED"
	case ManualOverride:
		return "MANUAL"
	case EmergencyStop:
		return "EMERGENCY_STOP"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Parse returns the mode for a configuration value such as "autonomous"
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "autonomous":
		return Autonomous, nil
	case "paused":
		return Paused, nil
	case "manual":
		return ManualOverride, nil
	case "emergency_stop", "stop":
		return EmergencyStop, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Event is an operator or system input to the state machine
type Event int

const (
	ThrottleUp Event = iota + 1
	ThrottleDown
	SteerLeft
	SteerRight
	OmegaLeft
	OmegaRight
	ToggleLED
	ToggleManual
	TogglePause
	Stop
	Resume
	LinkLost
	NextDetector
	Quit
)

var eventNames = map[Event]string{
	ThrottleUp:   "throttle_up",
	ThrottleDown: "throttle_down",
	SteerLeft:    "steer_left",
	SteerRight:   "steer_right",
	OmegaLeft:    "omega_left",
	OmegaRight:   "omega_right",
	ToggleLED:    "toggle_led",
	ToggleManual: "toggle_manual",
	TogglePause:  "toggle_pause",
	Stop:         "stop",
	Resume:       "resume",
	LinkLost:     "link_lost",
	NextDetector: "next_detector",
	Quit:         "quit",
}

// String returns the event name
func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// key codes returned by gocv.WaitKey
const (
	keyEsc   = 27
	keySpace = ' '
)

var keyEvents = map[int]Event{
	'w':      ThrottleUp,
	's':      ThrottleDown,
	'a':      SteerLeft,
	'd':      SteerRight,
	'e':      OmegaRight,
	'c':      OmegaLeft,
	'x':      ToggleLED,
	'm':      ToggleManual,
	'p':      TogglePause,
	keySpace: Stop,
	'r':      Resume,
	't':      NextDetector,
	'q':      Quit,
	keyEsc:   Quit,
}

// KeyEvent maps a key code as returned by gocv.WaitKey to an event.  False
// is returned for unmapped keys and when no key was pressed (-1).
func KeyEvent(key int) (Event, bool) {

	if key < 0 {
		return 0, false
	}

	ev, ok := keyEvents[key&0xFF]
	return ev, ok
}

// KeyHelp returns the key bindings as display lines
func KeyHelp() []string {
	return []string{
		"w/s throttle  a/d steering  e/c omega",
		"m manual  p pause  space stop  r resume",
		"x led  t detector  q quit",
	}
}
