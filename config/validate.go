package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// transport kinds accepted by Transport.Kind
var transportKinds = []string{"ble", "serial", "mqtt", "udp", "sim"}

// Validate checks every field and returns all failures joined together, each
// wrapping ErrInvalidConfiguration
func (c *Config) Validate() error {

	var errs []error

	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfiguration,
			fmt.Sprintf(format, args...)))
	}

	// camera
	if c.Camera.URL == "" {
		invalid("camera.url must be set")
	}
	if !positive(c.Camera.Scale) || c.Camera.Scale > 1 {
		invalid("camera.scale must be between 0 and 1, got %v", c.Camera.Scale)
	}
	if c.Camera.Blur < 0 || (c.Camera.Blur > 0 && c.Camera.Blur%2 == 0) {
		invalid("camera.blur must be 0 or a positive odd number, got %d", c.Camera.Blur)
	}

	// aruco
	if !positive(c.Aruco.MarkerSizeCM) {
		invalid("aruco.marker_size_cm must be > 0, got %v", c.Aruco.MarkerSizeCM)
	}
	if !positive(c.Aruco.FocalLengthPx) {
		invalid("aruco.focal_length_px must be > 0, got %v", c.Aruco.FocalLengthPx)
	}
	if n := len(c.Aruco.CameraMatrix); n != 0 && n != 9 {
		invalid("aruco.camera_matrix must have 9 elements, got %d", n)
	}
	for i, v := range c.Aruco.CameraMatrix {
		if !finite(v) {
			invalid("aruco.camera_matrix[%d] must be finite, got %v", i, v)
		}
	}
	if c.Aruco.AdaptiveThreshWinSizeMin < 3 ||
		c.Aruco.AdaptiveThreshWinSizeMax < c.Aruco.AdaptiveThreshWinSizeMin {
		invalid("aruco adaptive threshold window %d..%d is invalid",
			c.Aruco.AdaptiveThreshWinSizeMin, c.Aruco.AdaptiveThreshWinSizeMax)
	}
	if c.Aruco.AdaptiveThreshWinSizeStep <= 0 {
		invalid("aruco.adaptive_thresh_win_size_step must be > 0, got %d",
			c.Aruco.AdaptiveThreshWinSizeStep)
	}

	// color tracking
	for i := 0; i < 3; i++ {
		if !finite(c.ColorTracking.HSVLower[i]) || !finite(c.ColorTracking.HSVUpper[i]) {
			invalid("color_tracking hsv bound %d must be finite, got %v..%v",
				i, c.ColorTracking.HSVLower[i], c.ColorTracking.HSVUpper[i])
			continue
		}
		if c.ColorTracking.HSVLower[i] > c.ColorTracking.HSVUpper[i] {
			invalid("color_tracking.hsv_lower[%d] %v exceeds hsv_upper[%d] %v",
				i, c.ColorTracking.HSVLower[i], i, c.ColorTracking.HSVUpper[i])
		}
	}
	if !nonNegative(c.ColorTracking.MinContourArea) {
		invalid("color_tracking.min_contour_area must be non-negative, got %v",
			c.ColorTracking.MinContourArea)
	}

	// navigation
	n := c.Navigation

	if n.InitialMode != "autonomous" && n.InitialMode != "paused" {
		invalid("navigation.initial_mode must be autonomous or paused, got %q", n.InitialMode)
	}
	if !positive(n.TargetDistanceCM) {
		invalid("navigation.target_distance_cm must be > 0, got %v", n.TargetDistanceCM)
	}
	if !nonNegative(n.DistanceToleranceCM) {
		invalid("navigation.distance_tolerance_cm must be non-negative, got %v", n.DistanceToleranceCM)
	}
	if !positive(n.TargetAreaRatio) || n.TargetAreaRatio > 1 {
		invalid("navigation.target_area_ratio must be between 0 and 1, got %v", n.TargetAreaRatio)
	}
	if !nonNegative(n.AreaRatioTolerance) {
		invalid("navigation.area_ratio_tolerance must be non-negative, got %v", n.AreaRatioTolerance)
	}
	if !positive(n.MaxSteering) || n.MaxSteering > 1 {
		invalid("navigation.max_steering must be between 0 and 1, got %v", n.MaxSteering)
	}
	if !nonNegative(n.SteeringKp) {
		invalid("navigation.steering_kp must be non-negative, got %v", n.SteeringKp)
	}
	if !between(n.BaseThrottle, 0, 1) {
		invalid("navigation.base_throttle must be between 0 and 1, got %v", n.BaseThrottle)
	}
	if !between(n.BackwardThrottleMultiplier, 0, 1) {
		invalid("navigation.backward_throttle_multiplier must be between 0 and 1, got %v",
			n.BackwardThrottleMultiplier)
	}
	if !nonNegative(n.SteeringDeadZone) {
		invalid("navigation.steering_dead_zone must be non-negative, got %v", n.SteeringDeadZone)
	}
	if !between(n.SteeringQuantization, 0, 1) {
		invalid("navigation.steering_quantization must be between 0 and 1, got %v",
			n.SteeringQuantization)
	}
	if n.SendInterval <= 0 {
		invalid("navigation.send_interval must be > 0, got %v", n.SendInterval.D())
	}
	if n.DetectionGracePeriod < 0 {
		invalid("navigation.detection_grace_period must be non-negative, got %v",
			n.DetectionGracePeriod.D())
	}
	if !positive(n.ManualStep) || n.ManualStep > 1 {
		invalid("navigation.manual_step must be between 0 and 1, got %v", n.ManualStep)
	}
	for name, v := range map[string]float64{
		"throttle": n.ManualScale.Throttle,
		"steering": n.ManualScale.Steering,
		"omega":    n.ManualScale.Omega,
	} {
		if !between(v, 0, 1) {
			invalid("navigation.manual_scale.%s must be between 0 and 1, got %v", name, v)
		}
	}

	// transport
	t := c.Transport

	if !contains(transportKinds, t.Kind) {
		invalid("transport.kind must be one of %s, got %q",
			strings.Join(transportKinds, ", "), t.Kind)
	}

	switch t.Kind {
	case "ble":
		if t.BLE.DeviceName == "" {
			invalid("transport.ble.device_name must be set")
		}
		if len(t.BLE.UUIDBase) != 35 {
			invalid("transport.ble.uuid_base must be a UUID without its last digit, got %q",
				t.BLE.UUIDBase)
		}
	case "serial":
		if t.Serial.Port == "" {
			invalid("transport.serial.port must be set")
		}
		if t.Serial.BaudRate <= 0 {
			invalid("transport.serial.baud_rate must be > 0, got %d", t.Serial.BaudRate)
		}
	case "mqtt":
		if t.MQTT.Broker == "" {
			invalid("transport.mqtt.broker must be set")
		}
		if t.MQTT.QoS > 2 {
			invalid("transport.mqtt.qos must be 0, 1 or 2, got %d", t.MQTT.QoS)
		}
	case "udp":
		if t.UDP.Address == "" {
			invalid("transport.udp.address must be set")
		}
	}

	// telemetry
	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "off":
	default:
		invalid("telemetry.log_level %q is not a valid level", c.Telemetry.LogLevel)
	}

	if c.Viewer.Trail < 0 {
		invalid("viewer.trail must be non-negative, got %d", c.Viewer.Trail)
	}

	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// finite rejects NaN and the infinities, which slip through ordered
// comparisons
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}

func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}

func between(v, lo, hi float64) bool {
	return finite(v) && v >= lo && v <= hi
}
