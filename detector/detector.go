// Package detector provides the interchangeable target detectors that turn a
// camera frame into a DetectionResult.
package detector

import (
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav"
	"gocv.io/x/gocv"
)

// Detector finds the navigation target in a frame.  Implementations keep the
// last detection so it can be drawn by Annotate, which has no effect on the
// control path.
type Detector interface {
	// Name is the registry key of the detector
	Name() string
	// Kind declares the semantics of the DistanceMetric produced
	Kind() visnav.DistanceKind
	// Detect processes a BGR frame
	Detect(frame gocv.Mat) visnav.DetectionResult
	// Annotate draws the last detection on a full resolution frame
	Annotate(img *gocv.Mat)
	// Close releases native resources
	Close() error
}

// Option configures a detector
type Option func(*options)

type options struct {
	// scale is the factor the frames passed to Detect were resized by
	scale float64
	l     hclog.Logger
}

func newOptions(opts []Option) options {

	o := options{
		scale: 1,
		l:     hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.scale <= 0 {
		o.scale = 1
	}

	return o
}

// WithScale declares that frames given to Detect have been resized by scale,
// results are mapped back to full resolution coordinates
func WithScale(scale float64) Option {
	return func(o *options) {
		o.scale = scale
	}
}

// WithLogger sets the detector logger
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		o.l = l
	}
}

// fullSize returns the full resolution dimensions of a scaled frame
func (o options) fullSize(frame gocv.Mat) (int, int) {
	w := int(float64(frame.Cols())/o.scale + 0.5)
	h := int(float64(frame.Rows())/o.scale + 0.5)
	return w, h
}
