// Package control converts target detections into throttle and steering
// commands using a proportional control law.
package control

import (
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"math"
)

const (
	// SteeringSign maps lateral error to steering.  A target right of
	// center (positive error) produces a negative, leftward correction.
	SteeringSign = -1.0
	// ReverseSteeringSign is applied to steering when throttle is negative
	// so the car turns toward the target while backing up (Ackermann
	// inversion).
	ReverseSteeringSign = -1.0
)

// Setpoint is the target value and tolerance band for one distance metric
type Setpoint struct {
	Target    float64
	Tolerance float64
}

// Params is the controller configuration snapshot
type Params struct {
	// Setpoints are selected by the detection's DistanceKind
	Setpoints map[visnav.DistanceKind]Setpoint

	SteeringKp         float64
	MaxSteering        float64
	BaseThrottle       float64
	BackwardMultiplier float64
	DeadZone           float64
	QuantizationStep   float64
}

// ParamsFromConfig builds controller parameters from the navigation config
func ParamsFromConfig(n config.Navigation) Params {
	return Params{
		Setpoints: map[visnav.DistanceKind]Setpoint{
			visnav.KindDistance: {
				Target:    n.TargetDistanceCM,
				Tolerance: n.DistanceToleranceCM,
			},
			visnav.KindAreaRatio: {
				Target:    n.TargetAreaRatio,
				Tolerance: n.AreaRatioTolerance,
			},
		},
		SteeringKp:         n.SteeringKp,
		MaxSteering:        n.MaxSteering,
		BaseThrottle:       n.BaseThrottle,
		BackwardMultiplier: n.BackwardThrottleMultiplier,
		DeadZone:           n.SteeringDeadZone,
		QuantizationStep:   n.SteeringQuantization,
	}
}

// Controller computes control signals from detections.  It holds no state
// between calls besides its parameters, which are copied at construction.
type Controller struct {
	p Params
}

// New returns a controller for the given parameters
func New(p Params) *Controller {

	// copy setpoints so later changes to the caller's map have no effect
	sp := make(map[visnav.DistanceKind]Setpoint, len(p.Setpoints))

	for k, v := range p.Setpoints {
		sp[k] = v
	}

	p.Setpoints = sp

	return &Controller{p: p}
}

// Params returns a copy of the controller parameters
func (c *Controller) Params() Params {
	return c.p
}

// Compute returns the control signal for a detection.  Omega is always zero,
// only manual input drives the auxiliary rotation channel.
func (c *Controller) Compute(det visnav.DetectionResult) visnav.ControlSignal {

	if !det.Detected {
		return visnav.Neutral
	}

	throttle := c.Throttle(det.Kind, det.DistanceMetric)
	steering := c.Steering(det.LateralOffset())

	if throttle < 0 && steering != 0 {
		steering *= ReverseSteeringSign
	}

	return visnav.ControlSignal{
		Throttle: throttle,
		Steering: steering,
	}.Clamped()
}

// DistanceError returns the error for the metric normalized so that a
// positive value means the target is too far away
func (c *Controller) DistanceError(kind visnav.DistanceKind, metric float64) float64 {

	sp := c.p.Setpoints[kind]

	if kind == visnav.KindAreaRatio {
		// larger area means closer
		return sp.Target - metric
	}

	return metric - sp.Target
}

// Throttle applies the tolerance band to the distance error
func (c *Controller) Throttle(kind visnav.DistanceKind, metric float64) float64 {

	if math.IsNaN(metric) {
		return 0
	}

	err := c.DistanceError(kind, metric)

	switch {
	case math.Abs(err) <= c.p.Setpoints[kind].Tolerance:
		return 0
	case err > 0:
		return c.p.BaseThrottle
	default:
		return -c.p.BaseThrottle * c.p.BackwardMultiplier
	}
}

// Steering returns the forward steering for a lateral offset in pixels with
// the dead zone, clamp and quantization step applied
func (c *Controller) Steering(lateralError float64) float64 {

	if math.IsNaN(lateralError) {
		return 0
	}

	steering := SteeringSign * lateralError * c.p.SteeringKp

	if math.Abs(steering) < c.p.DeadZone {
		return 0
	}

	steering = visnav.Clamp(steering, -c.p.MaxSteering, c.p.MaxSteering)

	if c.p.QuantizationStep > 0 {
		steering = math.Round(steering/c.p.QuantizationStep) * c.p.QuantizationStep
		steering = visnav.Clamp(steering, -c.p.MaxSteering, c.p.MaxSteering)
	}

	// avoid returning negative zero
	if steering == 0 {
		return 0
	}

	return steering
}
