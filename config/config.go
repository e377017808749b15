// Package config loads the immutable configuration snapshot used by the
// navigation engine from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	// ErrInvalidConfiguration is wrapped by every validation failure
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// environment variables that override values from the config file
const (
	EnvMQTTBroker   = "VISNAV_MQTT_BROKER"
	EnvMQTTUsername = "VISNAV_MQTT_USERNAME"
	EnvMQTTPassword = "VISNAV_MQTT_PASSWORD"
	EnvSerialPort   = "VISNAV_SERIAL_PORT"
	EnvSerialBaud   = "VISNAV_SERIAL_BAUD"
	EnvCameraURL    = "VISNAV_CAMERA_URL"
)

// Duration is a time.Duration that is written in YAML as a duration string
// such as "250ms"
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {

	var s string

	if err := value.Decode(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)

	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// D returns the value as a time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// Config is the full configuration snapshot.  It is read once at startup and
// never mutated while the engine runs.
type Config struct {
	Camera        Camera        `yaml:"camera"`
	Aruco         Aruco         `yaml:"aruco"`
	ColorTracking ColorTracking `yaml:"color_tracking"`
	Navigation    Navigation    `yaml:"navigation"`
	Transport     Transport     `yaml:"transport"`
	Telemetry     Telemetry     `yaml:"telemetry"`
	Viewer        Viewer        `yaml:"viewer"`
}

// Camera configures frame acquisition and preprocessing
type Camera struct {
	// URL is a stream URL or a device index such as "0"
	URL        string `yaml:"url"`
	BufferSize int    `yaml:"buffer_size"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	// Scale downsizes frames before detection, 1 disables resizing
	Scale float64 `yaml:"scale"`
	// Blur is the Gaussian kernel size applied before detection, 0 disables
	Blur int `yaml:"blur"`
}

// Aruco configures the fiducial marker detector
type Aruco struct {
	DictionaryType string  `yaml:"dictionary_type"`
	MarkerSizeCM   float64 `yaml:"marker_size_cm"`
	FocalLengthPx  float64 `yaml:"focal_length_px"`
	// CameraMatrix is an optional row major 3x3 intrinsic matrix, when set
	// the calibrated pose estimator is used instead of the pinhole model
	CameraMatrix []float64 `yaml:"camera_matrix"`
	// TargetID restricts tracking to a single marker id
	TargetID *int `yaml:"target_id"`

	AdaptiveThreshWinSizeMin    int     `yaml:"adaptive_thresh_win_size_min"`
	AdaptiveThreshWinSizeMax    int     `yaml:"adaptive_thresh_win_size_max"`
	AdaptiveThreshWinSizeStep   int     `yaml:"adaptive_thresh_win_size_step"`
	MinMarkerPerimeterRate      float64 `yaml:"min_marker_perimeter_rate"`
	MaxMarkerPerimeterRate      float64 `yaml:"max_marker_perimeter_rate"`
	PolygonalApproxAccuracyRate float64 `yaml:"polygonal_approx_accuracy_rate"`
	CornerRefinementWinSize     int     `yaml:"corner_refinement_win_size"`
}

// ColorTracking configures the HSV color blob detector
type ColorTracking struct {
	HSVLower       [3]float64 `yaml:"hsv_lower"`
	HSVUpper       [3]float64 `yaml:"hsv_upper"`
	MinContourArea float64    `yaml:"min_contour_area"`
}

// ManualScale scales manual input per channel
type ManualScale struct {
	Throttle float64 `yaml:"throttle"`
	Steering float64 `yaml:"steering"`
	Omega    float64 `yaml:"omega"`
}

// Navigation holds the controller, mode and rate limiting parameters
type Navigation struct {
	// Detector is the name of the initially active detector
	Detector string `yaml:"detector"`
	// InitialMode is either "autonomous" or "paused"
	InitialMode string `yaml:"initial_mode"`

	TargetDistanceCM    float64 `yaml:"target_distance_cm"`
	DistanceToleranceCM float64 `yaml:"distance_tolerance_cm"`
	TargetAreaRatio     float64 `yaml:"target_area_ratio"`
	AreaRatioTolerance  float64 `yaml:"area_ratio_tolerance"`

	MaxSteering                float64 `yaml:"max_steering"`
	SteeringKp                 float64 `yaml:"steering_kp"`
	BaseThrottle               float64 `yaml:"base_throttle"`
	BackwardThrottleMultiplier float64 `yaml:"backward_throttle_multiplier"`
	SteeringDeadZone           float64 `yaml:"steering_dead_zone"`
	SteeringQuantization       float64 `yaml:"steering_quantization"`

	SendInterval         Duration `yaml:"send_interval"`
	DetectionGracePeriod Duration `yaml:"detection_grace_period"`
	PauseOnLinkLoss      bool     `yaml:"pause_on_link_loss"`

	ManualStep  float64     `yaml:"manual_step"`
	ManualScale ManualScale `yaml:"manual_scale"`
}

// BLE configures the bluetooth low energy transport
type BLE struct {
	DeviceName string `yaml:"device_name"`
	// UUIDBase is the characteristic UUID without its final hex digit, the
	// channel number is appended to address each characteristic
	UUIDBase    string   `yaml:"uuid_base"`
	ScanTimeout Duration `yaml:"scan_timeout"`
}

// Serial configures the serial bridge transport
type Serial struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MQTT configures the MQTT transport
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// UDP configures the UDP datagram transport
type UDP struct {
	Address string `yaml:"address"`
}

// Transport selects and configures the actuator link
type Transport struct {
	// Kind is one of ble, serial, mqtt, udp or sim
	Kind string `yaml:"kind"`
	// Async dispatches writes from a background goroutine
	Async          bool     `yaml:"async"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	BLE            BLE      `yaml:"ble"`
	Serial         Serial   `yaml:"serial"`
	MQTT           MQTT     `yaml:"mqtt"`
	UDP            UDP      `yaml:"udp"`
}

// Telemetry configures logging and live metrics
type Telemetry struct {
	LogLevel string `yaml:"log_level"`
	JSONLogs bool   `yaml:"json_logs"`
	// VizAddr serves expvar metrics when set, eg: ":8081"
	VizAddr string `yaml:"viz_addr"`
}

// Viewer configures the annotated frame outputs
type Viewer struct {
	Window     bool   `yaml:"window"`
	WindowName string `yaml:"window_name"`
	// StreamAddr serves an MJPEG stream when set, eg: ":8080"
	StreamAddr string `yaml:"stream_addr"`
	Trail      int    `yaml:"trail"`
}

// Default returns a configuration populated with the default values
func Default() *Config {
	return &Config{
		Camera: Camera{
			URL:        "0",
			BufferSize: 1,
			Width:      640,
			Height:     480,
			Scale:      1,
		},
		Aruco: Aruco{
			DictionaryType:              "DICT_6X6_250",
			MarkerSizeCM:                10,
			FocalLengthPx:               800,
			AdaptiveThreshWinSizeMin:    3,
			AdaptiveThreshWinSizeMax:    23,
			AdaptiveThreshWinSizeStep:   10,
			MinMarkerPerimeterRate:      0.03,
			MaxMarkerPerimeterRate:      4.0,
			PolygonalApproxAccuracyRate: 0.05,
			CornerRefinementWinSize:     5,
		},
		ColorTracking: ColorTracking{
			HSVLower:       [3]float64{0, 100, 100},
			HSVUpper:       [3]float64{10, 255, 255},
			MinContourArea: 500,
		},
		Navigation: Navigation{
			Detector:                   "aruco",
			InitialMode:                "paused",
			TargetDistanceCM:           50,
			DistanceToleranceCM:        3,
			TargetAreaRatio:            0.05,
			AreaRatioTolerance:         0.01,
			MaxSteering:                0.6,
			SteeringKp:                 0.003,
			BaseThrottle:               0.3,
			BackwardThrottleMultiplier: 0.5,
			SteeringDeadZone:           0.1,
			SteeringQuantization:       0.05,
			SendInterval:               Duration(250 * time.Millisecond),
			DetectionGracePeriod:       Duration(2 * time.Second),
			ManualStep:                 0.1,
			ManualScale:                ManualScale{Throttle: 1, Steering: 1, Omega: 1},
		},
		Transport: Transport{
			Kind:           "ble",
			ConnectTimeout: Duration(10 * time.Second),
			BLE: BLE{
				DeviceName:  "BLE_Sensor_Hub",
				UUIDBase:    "12345678-1234-5678-1234-56789abcdef",
				ScanTimeout: Duration(10 * time.Second),
			},
			Serial: Serial{
				Port:     "/dev/ttyUSB0",
				BaudRate: 115200,
			},
			MQTT: MQTT{
				Broker:      "tcp://localhost:1883",
				TopicPrefix: "visnav/car",
			},
			UDP: UDP{
				Address: "127.0.0.1:9999",
			},
		},
		Telemetry: Telemetry{
			LogLevel: "info",
		},
		Viewer: Viewer{
			WindowName: "visnav",
			Trail:      30,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.  A .env file in the working directory
// is loaded if present.
func Load(path string) (*Config, error) {

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))

		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse YAML: %v",
				ErrInvalidConfiguration, err)
		}
	}

	// missing .env file is not an error
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides transport endpoints and secrets from environment
// variables
func (c *Config) ApplyEnv() error {

	setEnv(EnvMQTTBroker, &c.Transport.MQTT.Broker)
	setEnv(EnvMQTTUsername, &c.Transport.MQTT.Username)
	setEnv(EnvMQTTPassword, &c.Transport.MQTT.Password)
	setEnv(EnvSerialPort, &c.Transport.Serial.Port)
	setEnv(EnvCameraURL, &c.Camera.URL)

	if v := os.Getenv(EnvSerialBaud); v != "" {
		baud, err := strconv.Atoi(v)

		if err != nil {
			return fmt.Errorf("%w: %s %q: %v",
				ErrInvalidConfiguration, EnvSerialBaud, v, err)
		}

		c.Transport.Serial.BaudRate = baud
	}

	return nil
}

func setEnv(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Matrix returns the intrinsic matrix and true if one is configured
func (a Aruco) Matrix() ([9]float64, bool) {

	var k [9]float64

	if len(a.CameraMatrix) != 9 {
		return k, false
	}

	copy(k[:], a.CameraMatrix)
	return k, true
}
