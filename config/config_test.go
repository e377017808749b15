package config

import (
	"errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.6, cfg.Navigation.MaxSteering)
	assert.Equal(t, 0.003, cfg.Navigation.SteeringKp)
	assert.Equal(t, 0.3, cfg.Navigation.BaseThrottle)
	assert.Equal(t, 0.5, cfg.Navigation.BackwardThrottleMultiplier)
	assert.Equal(t, 0.1, cfg.Navigation.SteeringDeadZone)
	assert.Equal(t, 0.05, cfg.Navigation.SteeringQuantization)
	assert.Equal(t, 50.0, cfg.Navigation.TargetDistanceCM)
	assert.Equal(t, 3.0, cfg.Navigation.DistanceToleranceCM)
	assert.Equal(t, 250*time.Millisecond, cfg.Navigation.SendInterval.D())
	assert.Equal(t, [3]float64{0, 100, 100}, cfg.ColorTracking.HSVLower)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
camera:
  url: http://10.0.0.5:4747/video
aruco:
  marker_size_cm: 15
  target_id: 7
  camera_matrix: [900, 0, 320, 0, 900, 240, 0, 0, 1]
navigation:
  initial_mode: autonomous
  steering_kp: 0.005
  send_interval: 100ms
  detection_grace_period: 1s
transport:
  kind: serial
  serial:
    port: /dev/ttyACM0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:4747/video", cfg.Camera.URL)
	assert.Equal(t, 15.0, cfg.Aruco.MarkerSizeCM)
	require.NotNil(t, cfg.Aruco.TargetID)
	assert.Equal(t, 7, *cfg.Aruco.TargetID)
	assert.Equal(t, "autonomous", cfg.Navigation.InitialMode)
	assert.Equal(t, 0.005, cfg.Navigation.SteeringKp)
	assert.Equal(t, 100*time.Millisecond, cfg.Navigation.SendInterval.D())
	assert.Equal(t, time.Second, cfg.Navigation.DetectionGracePeriod.D())
	assert.Equal(t, "/dev/ttyACM0", cfg.Transport.Serial.Port)

	// unset fields keep their defaults
	assert.Equal(t, 0.6, cfg.Navigation.MaxSteering)
	assert.Equal(t, 115200, cfg.Transport.Serial.BaudRate)

	k, ok := cfg.Aruco.Matrix()
	require.True(t, ok)
	if diff := cmp.Diff([9]float64{900, 0, 320, 0, 900, 240, 0, 0, 1}, k); diff != "" {
		t.Errorf("camera matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvMQTTBroker, "tcp://broker.local:1883")
	t.Setenv(EnvMQTTPassword, "secret")
	t.Setenv(EnvCameraURL, "rtsp://camera/stream")
	t.Setenv(EnvSerialBaud, "57600")

	path := writeConfig(t, "transport:\n  kind: mqtt\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker.local:1883", cfg.Transport.MQTT.Broker)
	assert.Equal(t, "secret", cfg.Transport.MQTT.Password)
	assert.Equal(t, "rtsp://camera/stream", cfg.Camera.URL)
	assert.Equal(t, 57600, cfg.Transport.Serial.BaudRate)
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv(EnvSerialBaud, "fast")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, "navigation:\n  send_interval: soon\n")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Navigation.MaxSteering = 1.5
	cfg.Navigation.BaseThrottle = -0.1
	cfg.Navigation.InitialMode = "manual"
	cfg.Transport.Kind = "carrier-pigeon"
	cfg.Aruco.CameraMatrix = []float64{1, 2, 3}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	msg := err.Error()
	for _, field := range []string{
		"navigation.max_steering",
		"navigation.base_throttle",
		"navigation.initial_mode",
		"transport.kind",
		"aruco.camera_matrix",
	} {
		assert.Contains(t, msg, field)
	}
}

func TestLoadRejectsNonFiniteValues(t *testing.T) {
	path := writeConfig(t, `
aruco:
  marker_size_cm: .nan
  camera_matrix: [600, 0, 320, 0, .inf, 240, 0, 0, 1]
navigation:
  max_steering: .nan
  steering_kp: .nan
  base_throttle: -.inf
  target_area_ratio: .nan
color_tracking:
  hsv_upper: [.nan, 255, 255]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	msg := err.Error()
	for _, field := range []string{
		"aruco.marker_size_cm",
		"aruco.camera_matrix[4]",
		"navigation.max_steering",
		"navigation.steering_kp",
		"navigation.base_throttle",
		"navigation.target_area_ratio",
		"color_tracking hsv bound 0",
	} {
		assert.Contains(t, msg, field)
	}
}

func TestValidateTransportSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"ble name", func(c *Config) { c.Transport.BLE.DeviceName = "" }, "transport.ble.device_name"},
		{"ble uuid", func(c *Config) { c.Transport.BLE.UUIDBase = "1234" }, "transport.ble.uuid_base"},
		{"serial port", func(c *Config) {
			c.Transport.Kind = "serial"
			c.Transport.Serial.Port = ""
		}, "transport.serial.port"},
		{"mqtt qos", func(c *Config) {
			c.Transport.Kind = "mqtt"
			c.Transport.MQTT.QoS = 3
		}, "transport.mqtt.qos"},
		{"udp address", func(c *Config) {
			c.Transport.Kind = "udp"
			c.Transport.UDP.Address = ""
		}, "transport.udp.address"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestMatrixAbsent(t *testing.T) {
	_, ok := Default().Aruco.Matrix()
	assert.False(t, ok)
}
