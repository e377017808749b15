package visnav

import (
	"fmt"
	"github.com/swdee/go-visnav/geometry"
)

// DistanceKind declares the semantics of DetectionResult.DistanceMetric.  The
// metric of one kind is never comparable with that of another.
type DistanceKind int

const (
	// KindDistance is a real distance to the target in centimeters, smaller
	// means closer
	KindDistance DistanceKind = 1
	// KindAreaRatio is the area of the target divided by the total frame
	// area, larger means closer
	KindAreaRatio DistanceKind = 2
)

// String returns a readable name of the distance kind
func (k DistanceKind) String() string {
	switch k {
	case KindDistance:
		return "distance"
	case KindAreaRatio:
		return "area_ratio"
	default:
		return fmt.Sprintf("DistanceKind(%d)", int(k))
	}
}

// DetectionResult is produced once per frame by a target detector.  When
// Detected is false every other numeric field is undefined and must not be
// consumed.
type DetectionResult struct {
	Detected bool
	// CenterX and CenterY are the pixel coordinates of the target centroid
	CenterX float64
	CenterY float64
	// DistanceMetric is interpreted according to Kind
	DistanceMetric float64
	Kind           DistanceKind
	// TargetID is the marker identity, nil for detectors without one
	TargetID *int
	// ApparentSize is the target size in pixels the metric was derived from,
	// the mean marker side length or the blob area
	ApparentSize float64
	// FrameWidth and FrameHeight are the dimensions of the frame the
	// detection was made on
	FrameWidth  int
	FrameHeight int
}

// NoDetection returns a result for a frame in which no target was found
func NoDetection(frameWidth, frameHeight int) DetectionResult {
	return DetectionResult{
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
	}
}

// LateralOffset returns the horizontal pixel offset of the target from the
// frame center, positive when the target is right of center
func (d DetectionResult) LateralOffset() float64 {
	return geometry.LateralOffset(d.CenterX, d.FrameWidth)
}

// ID returns the target id and if one is set
func (d DetectionResult) ID() (int, bool) {
	if d.TargetID == nil {
		return 0, false
	}
	return *d.TargetID, true
}

// String returns a compact description used in log output
func (d DetectionResult) String() string {
	if !d.Detected {
		return "no target"
	}

	id := "-"
	if v, ok := d.ID(); ok {
		id = fmt.Sprintf("%d", v)
	}

	return fmt.Sprintf("id=%s center=(%.0f,%.0f) %s=%.3f", id, d.CenterX,
		d.CenterY, d.Kind, d.DistanceMetric)
}
