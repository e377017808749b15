package visnav

import (
	"fmt"
	"math"
)

// ControlSignal is the motion command for one control tick.  All values are
// in the range [-1.0, 1.0] and never NaN once they leave the controller.
type ControlSignal struct {
	Throttle float64
	Steering float64
	// Omega is the differential rotation channel, only driven by manual input
	Omega float64
}

// Neutral is the stop command
var Neutral = ControlSignal{}

// Clamped returns a copy of the signal with every channel limited to
// [-1.0, 1.0] and any NaN replaced with zero
func (s ControlSignal) Clamped() ControlSignal {
	return ControlSignal{
		Throttle: Clamp(s.Throttle, -1, 1),
		Steering: Clamp(s.Steering, -1, 1),
		Omega:    Clamp(s.Omega, -1, 1),
	}
}

// IsNeutral returns true if all channels are zero
func (s ControlSignal) IsNeutral() bool {
	return s == Neutral
}

// String returns a readable form of the signal
func (s ControlSignal) String() string {
	return fmt.Sprintf("throttle=%+.2f steering=%+.2f omega=%+.2f",
		s.Throttle, s.Steering, s.Omega)
}

// Clamp keeps value inside [lo, hi], NaN is mapped to zero clamped into range
func Clamp(value, lo, hi float64) float64 {

	if math.IsNaN(value) {
		value = 0
	}

	if value < lo {
		return lo
	}

	if value > hi {
		return hi
	}

	return value
}
