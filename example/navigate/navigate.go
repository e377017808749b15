/*
Example code showing how to drive a robot car toward an ArUco marker or a
colored object using the navigation engine.

Keys in the preview window:

	w/s   throttle up/down (manual)    a/d  steer left/right (manual)
	e/c   rotate left/right (manual)   x    toggle LED
	m     toggle manual override       p    toggle pause
	space emergency stop               r    resume
	t     next detector                q    quit
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/detector"
	"github.com/swdee/go-visnav/engine"
	"github.com/swdee/go-visnav/mode"
	"github.com/swdee/go-visnav/telemetry"
	"github.com/swdee/go-visnav/transport"
	"github.com/swdee/go-visnav/viewer"
	"gocv.io/x/gocv"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

func main() {

	// read in cli flags
	configFile := flag.String("config", "", "YAML configuration file, built in defaults are used when not set")
	detectorName := flag.String("detector", "", "Initial detector [aruco|color]")
	transportKind := flag.String("transport", "", "Actuator link [ble|serial|mqtt|udp|sim]")
	cameraURL := flag.String("camera", "", "Camera device index, video file or stream URL")
	showWindow := flag.Bool("window", false, "Show the annotated preview window and read keys from it")
	streamAddr := flag.String("stream", "", "HTTP address to serve the MJPEG stream on, format address:port")
	vizAddr := flag.String("viz", "", "HTTP address to serve live metrics on, format address:port")
	logLevel := flag.String("log-level", "", "Log level [trace|debug|info|warn|error]")
	decoupled := flag.Bool("decoupled", false, "Run detection in its own goroutine")
	cpuCores := flag.String("cpus", "", "Pin to CPU cores, eg: rk3588:fast, 4-7 or 0,2,4")

	flag.Parse()

	cfg, err := config.Load(*configFile)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(2)
	}

	setString(&cfg.Navigation.Detector, *detectorName)
	setString(&cfg.Transport.Kind, *transportKind)
	setString(&cfg.Camera.URL, *cameraURL)
	setString(&cfg.Viewer.StreamAddr, *streamAddr)
	setString(&cfg.Telemetry.VizAddr, *vizAddr)
	setString(&cfg.Telemetry.LogLevel, *logLevel)

	if *showWindow {
		cfg.Viewer.Window = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	l := telemetry.NewLogger("visnav", cfg.Telemetry).
		With("session", uuid.NewString()[:8])

	if *cpuCores != "" {
		if err := pinCores(*cpuCores); err != nil {
			l.Error("Failed to set CPU affinity", "cpus", *cpuCores, "err", err)
			os.Exit(2)
		}

		l.Info("Set CPU affinity", "cpus", *cpuCores)
	}

	if err := run(cfg, *decoupled, l); err != nil {
		l.Error("Navigation failed", "err", err)
		os.Exit(1)
	}
}

// pinCores sets the cpu affinity of the program so the control loop runs on
// the chosen cores
func pinCores(setting string) error {

	mask, err := visnav.ParseCPUMask(setting)

	if err != nil {
		return err
	}

	return visnav.SetCPUAffinity(mask)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func run(cfg *config.Config, decoupled bool, l hclog.Logger) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	reg, err := detector.FromConfig(cfg, l.Named("detector"))

	if err != nil {
		return fmt.Errorf("error creating detectors: %w", err)
	}

	defer reg.Close()

	link := connectLink(ctx, cfg.Transport, l.Named("transport"))
	defer link.Disconnect()

	cam, err := openCamera(cfg.Camera)

	if err != nil {
		return err
	}

	defer cam.Close()

	var opts []engine.Option

	opts = append(opts, engine.WithLogger(l.Named("engine")))

	if decoupled {
		opts = append(opts, engine.WithDecoupledDetection())
	}

	if cfg.Telemetry.VizAddr != "" {
		metrics := telemetry.NewMetrics()

		viz, err := telemetry.StartViz(cfg.Telemetry.VizAddr, metrics, l.Named("viz"))

		if err != nil {
			return fmt.Errorf("error starting viz endpoint: %w", err)
		}

		defer viz.Close(context.Background())

		opts = append(opts, engine.WithMetrics(metrics))
	}

	var window *viewer.Window
	var stream *viewer.Stream

	if cfg.Viewer.Window {
		window = viewer.NewWindow(cfg.Viewer.WindowName)
		defer window.Close()

		for _, line := range mode.KeyHelp() {
			l.Info(line)
		}
	}

	if cfg.Viewer.StreamAddr != "" {
		stream = viewer.NewStream(viewer.WithLogger(l.Named("stream")))
		defer stream.Close()

		srv, err := viewer.Serve(cfg.Viewer.StreamAddr, stream, l.Named("stream"))

		if err != nil {
			return fmt.Errorf("error starting stream server: %w", err)
		}

		defer srv.Close(context.Background())
	}

	eng, err := engine.New(cfg, reg, link, opts...)

	if err != nil {
		return err
	}

	defer eng.Close()

	if window != nil || stream != nil {
		overlay := engine.NewOverlay(reg, eng.Trail(), window, stream, l.Named("overlay"))
		defer overlay.Close()

		eng.AddRenderer(overlay)
	}

	err = eng.Run(ctx, cam, nil)

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// connectLink connects the configured transport and falls back to the
// simulated link when no device is reachable
func connectLink(ctx context.Context, cfg config.Transport, l hclog.Logger) transport.Adapter {

	link, err := transport.New(cfg, l)

	if err == nil {
		cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout.D())
		ok := link.Connect(cctx)
		cancel()

		if ok {
			l.Info("Link connected", "link", link.Name())
			return link
		}

		link.Disconnect()
		err = transport.ErrLinkUnavailable
	}

	l.Warn("Falling back to simulated link, commands are logged not sent",
		"kind", cfg.Kind, "err", err)

	sim := transport.NewSim(l.Named("sim"))
	sim.Connect(ctx)

	return sim
}

// openCamera opens a device index, video file or stream URL
func openCamera(cfg config.Camera) (*gocv.VideoCapture, error) {

	var device interface{} = cfg.URL

	if idx, err := strconv.Atoi(strings.TrimSpace(cfg.URL)); err == nil {
		device = idx
	}

	cam, err := gocv.OpenVideoCapture(device)

	if err != nil {
		return nil, fmt.Errorf("error opening camera %q: %w", cfg.URL, err)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		cam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	if cfg.BufferSize > 0 {
		cam.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	}

	// allow the capture device to settle
	time.Sleep(100 * time.Millisecond)

	return cam, nil
}
