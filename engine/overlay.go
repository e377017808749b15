package engine

import (
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/detector"
	"github.com/swdee/go-visnav/mode"
	"github.com/swdee/go-visnav/render"
	"github.com/swdee/go-visnav/tracker"
	"github.com/swdee/go-visnav/viewer"
	"gocv.io/x/gocv"
	"time"
)

// fpsInterval is the period the frame rate is averaged over
const fpsInterval = time.Second

// Overlay is a Renderer that annotates frames with the detection, target
// trail and HUD, then shows them in a window and publishes them to an MJPEG
// stream.  Either output may be nil.
type Overlay struct {
	registry *detector.Registry
	trail    *tracker.Trail
	window   *viewer.Window
	stream   *viewer.Stream
	style    render.TrailStyle
	l        hclog.Logger

	img gocv.Mat

	// used for calculating FPS
	frameCount int
	startTime  time.Time
	fps        float64
}

// NewOverlay returns an overlay drawing the active detector of the registry
// and the trail
func NewOverlay(reg *detector.Registry, trail *tracker.Trail,
	window *viewer.Window, stream *viewer.Stream, l hclog.Logger) *Overlay {

	if l == nil {
		l = hclog.NewNullLogger()
	}

	return &Overlay{
		registry:  reg,
		trail:     trail,
		window:    window,
		stream:    stream,
		style:     render.DefaultTrailStyle(),
		l:         l,
		img:       gocv.NewMat(),
		startTime: time.Now(),
	}
}

// Render draws the tick on a copy of the frame and outputs it.  Returns the
// event bound to a key pressed in the window.
func (o *Overlay) Render(frame *gocv.Mat, rep Report) (mode.Event, bool) {

	o.updateFPS()

	if frame.Empty() {
		if o.window != nil {
			return o.window.Show(*frame)
		}
		return 0, false
	}

	// copy the source image and annotate the copy
	frame.CopyTo(&o.img)

	if d := o.registry.Active(); d != nil {
		d.Annotate(&o.img)
	}

	render.Trail(&o.img, o.trail, o.style)

	err := render.HUD(&o.img, render.Status{
		Mode:        rep.Mode,
		Detector:    rep.Detector,
		Detection:   rep.Detection,
		Signal:      rep.Signal,
		LED:         rep.LED,
		Transmitted: rep.Transmitted,
		FPS:         o.fps,
	})

	if err != nil {
		o.l.Debug("Error drawing HUD", "err", err)
	}

	if o.stream != nil {
		if err := o.stream.Publish(o.img); err != nil {
			o.l.Debug("Error publishing frame", "err", err)
		}
	}

	if o.window != nil {
		return o.window.Show(o.img)
	}

	return 0, false
}

// FPS returns the rendered frame rate
func (o *Overlay) FPS() float64 {
	return o.fps
}

func (o *Overlay) updateFPS() {

	o.frameCount++
	elapsed := time.Since(o.startTime)

	if elapsed >= fpsInterval {
		o.fps = float64(o.frameCount) / elapsed.Seconds()
		o.frameCount = 0
		o.startTime = time.Now()
	}
}

// Close frees the annotation buffer
func (o *Overlay) Close() error {
	return o.img.Close()
}
