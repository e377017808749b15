package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/mode"
	"net/http"
	"testing"
)

func TestNewLoggerLevel(t *testing.T) {

	var buf bytes.Buffer

	l := newLogger("visnav", config.Telemetry{LogLevel: "warn"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "key", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "visnav")
}

func TestNewLoggerFallback(t *testing.T) {

	var buf bytes.Buffer

	l := newLogger("visnav", config.Telemetry{LogLevel: "nonsense"}, &buf)
	assert.True(t, l.IsInfo())
	assert.False(t, l.IsDebug())
}

func TestNewLoggerJSON(t *testing.T) {

	var buf bytes.Buffer

	l := newLogger("visnav", config.Telemetry{LogLevel: "debug", JSONLogs: true}, &buf)
	l.Debug("tick", "throttle", 0.3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tick", line["@message"])
	assert.Equal(t, 0.3, line["throttle"])
}

func TestMetricsSnapshot(t *testing.T) {

	m := NewMetrics()

	m.UpdateInput(visnav.DetectionResult{
		Detected:       true,
		CenterX:        400,
		CenterY:        200,
		DistanceMetric: 52,
		Kind:           visnav.KindDistance,
		FrameWidth:     640,
		FrameHeight:    480,
	})
	m.UpdateOutput(mode.Autonomous, visnav.ControlSignal{Throttle: -0.15, Steering: 0.2})
	m.Tick()
	m.Tick()
	m.Sent(3)
	m.Failed(1)
	m.Connected(true)

	snap := m.Snapshot()

	input := snap["input"].(map[string]any)
	assert.Equal(t, 1.0, input["detected"])
	assert.Equal(t, 80.0, input["offset"])
	assert.Equal(t, 52.0, input["metric"])

	output := snap["output"].(map[string]any)
	assert.Equal(t, -0.15, output["throttle"])
	assert.Equal(t, float64(mode.Autonomous), output["mode"])

	link := snap["link"].(map[string]any)
	assert.Equal(t, 2.0, link["ticks"])
	assert.Equal(t, 3.0, link["sent"])
	assert.Equal(t, 1.0, link["failures"])
	assert.Equal(t, 1.0, link["connected"])

	m.UpdateInput(visnav.NoDetection(640, 480))
	assert.Equal(t, 0.0, m.Snapshot()["input"].(map[string]any)["detected"])
}

func TestMetricsNilSafe(t *testing.T) {

	var m *Metrics

	assert.NotPanics(t, func() {
		m.UpdateInput(visnav.DetectionResult{Detected: true})
		m.UpdateOutput(mode.Paused, visnav.Neutral)
		m.Tick()
		m.Sent(1)
		m.Failed(1)
		m.Connected(false)
	})
}

func TestStartViz(t *testing.T) {

	m := NewMetrics()
	m.Sent(4)

	v, err := StartViz("127.0.0.1:0", m, nil)
	require.NoError(t, err)
	defer v.Close(context.Background())

	resp, err := http.Get("http://" + v.Addr() + "/visnav")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 4.0, body["link"].(map[string]any)["sent"])

	vars, err := http.Get("http://" + v.Addr() + "/debug/vars")
	require.NoError(t, err)
	defer vars.Body.Close()

	var all map[string]any
	require.NoError(t, json.NewDecoder(vars.Body).Decode(&all))
	assert.Contains(t, all, "visnav_link")
}
