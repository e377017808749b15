package control

import (
	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"math"
	"testing"
)

func testParams() Params {
	p := ParamsFromConfig(config.Default().Navigation)
	return p
}

func markerAt(centerX, distance float64) visnav.DetectionResult {
	id := 3
	return visnav.DetectionResult{
		Detected:       true,
		CenterX:        centerX,
		CenterY:        240,
		DistanceMetric: distance,
		Kind:           visnav.KindDistance,
		TargetID:       &id,
		FrameWidth:     640,
		FrameHeight:    480,
	}
}

func TestNotDetectedIsNeutral(t *testing.T) {
	c := New(testParams())

	det := visnav.DetectionResult{
		Detected:       false,
		CenterX:        math.NaN(),
		DistanceMetric: math.Inf(1),
		FrameWidth:     640,
	}

	assert.Equal(t, visnav.Neutral, c.Compute(det))
}

func TestBeyondTargetDrivesForward(t *testing.T) {
	c := New(testParams())

	sig := c.Compute(markerAt(320, 60))

	assert.Equal(t, 0.3, sig.Throttle)
	assert.Equal(t, 0.0, sig.Steering)
	assert.Equal(t, 0.0, sig.Omega)
}

func TestWithinToleranceStops(t *testing.T) {
	c := New(testParams())

	for _, d := range []float64{47, 49.5, 50, 51, 53} {
		assert.Equal(t, 0.0, c.Compute(markerAt(320, d)).Throttle, "distance %v", d)
	}

	assert.Equal(t, 0.3, c.Compute(markerAt(320, 53.5)).Throttle)
	assert.InDelta(t, -0.15, c.Compute(markerAt(320, 46.5)).Throttle, 1e-9)
}

func TestSteeringProportionalAndClamped(t *testing.T) {
	tests := []struct {
		name        string
		maxSteering float64
		expected    float64
	}{
		{"unclamped", 0.6, -0.5},
		{"clamped", 0.4, -0.4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			p.SteeringKp = 0.005
			p.MaxSteering = tc.maxSteering

			sig := New(p).Compute(markerAt(420, 50))

			assert.Equal(t, 0.0, sig.Throttle)
			assert.InDelta(t, tc.expected, sig.Steering, 1e-9)
		})
	}
}

func TestTargetLeftSteersRight(t *testing.T) {
	p := testParams()
	p.SteeringKp = 0.005

	sig := New(p).Compute(markerAt(220, 60))
	assert.InDelta(t, 0.5, sig.Steering, 1e-9)
}

func TestDeadZone(t *testing.T) {
	p := testParams()
	c := New(p)

	// every offset whose raw steering falls inside the dead zone yields 0
	for offset := -33.0; offset <= 33.0; offset += 0.5 {
		if math.Abs(offset*p.SteeringKp) >= p.DeadZone {
			continue
		}

		s := c.Steering(offset)
		assert.Equal(t, 0.0, s, "offset %v", offset)
		assert.False(t, math.Signbit(s), "negative zero at offset %v", offset)
	}
}

func TestReversingInvertsSteering(t *testing.T) {
	p := testParams()
	p.SteeringKp = 0.005
	c := New(p)

	forward := c.Compute(markerAt(420, 60))
	reverse := c.Compute(markerAt(420, 40))

	assert.Greater(t, forward.Throttle, 0.0)
	assert.Less(t, reverse.Throttle, 0.0)
	assert.InDelta(t, -forward.Steering, reverse.Steering, 1e-9)
	assert.InDelta(t, 0.5, reverse.Steering, 1e-9)
}

func TestQuantizationStep(t *testing.T) {
	p := testParams()
	p.SteeringKp = 0.001
	c := New(p)

	// raw 0.137 snaps to the nearest multiple of 0.05
	assert.InDelta(t, -0.15, c.Steering(137), 1e-9)
	assert.InDelta(t, 0.1, c.Steering(-112), 1e-9)

	p.QuantizationStep = 0
	c = New(p)
	assert.InDelta(t, -0.137, c.Steering(137), 1e-9)
}

func TestAreaRatioSetpoint(t *testing.T) {
	c := New(testParams())

	blob := func(ratio float64) visnav.DetectionResult {
		return visnav.DetectionResult{
			Detected:       true,
			CenterX:        320,
			DistanceMetric: ratio,
			Kind:           visnav.KindAreaRatio,
			FrameWidth:     640,
			FrameHeight:    480,
		}
	}

	assert.Equal(t, 0.3, c.Compute(blob(0.02)).Throttle, "small blob is far away")
	assert.Equal(t, 0.0, c.Compute(blob(0.055)).Throttle)
	assert.InDelta(t, -0.15, c.Compute(blob(0.1)).Throttle, 1e-9, "large blob is too close")
}

func TestOutputAlwaysInRange(t *testing.T) {
	p := testParams()
	p.SteeringKp = 1
	p.MaxSteering = 1
	p.BaseThrottle = 1
	c := New(p)

	for _, x := range []float64{-1e9, -640, 0, 640, 1e9, math.NaN()} {
		sig := c.Compute(markerAt(x, math.NaN()))

		assert.False(t, math.IsNaN(sig.Throttle))
		assert.False(t, math.IsNaN(sig.Steering))
		assert.LessOrEqual(t, math.Abs(sig.Steering), 1.0)
	}
}

func TestParamsAreCopied(t *testing.T) {
	p := testParams()
	c := New(p)

	p.Setpoints[visnav.KindDistance] = Setpoint{Target: 10, Tolerance: 1}

	assert.Equal(t, 50.0, c.Params().Setpoints[visnav.KindDistance].Target)
}
