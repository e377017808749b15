package detector

import (
	"fmt"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/geometry"
	"github.com/swdee/go-visnav/render"
	"gocv.io/x/gocv"
	"image"
	"sync"
)

// ColorName is the registry name of the color blob detector
const ColorName = "color"

// morphKernelSize is the side of the square kernel used to clean the mask
const morphKernelSize = 5

// blob is the state of the last processed frame kept for Annotate
type blob struct {
	outline []image.Point
	center  geometry.Point
	ratio   float64
}

// Color tracks the largest blob of pixels within an HSV range.  The distance
// metric is the blob area divided by the frame area.
type Color struct {
	opts    options
	kernel  gocv.Mat
	minArea float64

	mu    sync.Mutex
	lower [3]float64
	upper [3]float64
	last  *blob
}

// NewColor returns a color blob detector for the configured HSV range
func NewColor(cfg config.ColorTracking, opts ...Option) *Color {
	return &Color{
		opts: newOptions(opts),
		kernel: gocv.GetStructuringElement(gocv.MorphRect,
			image.Pt(morphKernelSize, morphKernelSize)),
		minArea: cfg.MinContourArea,
		lower:   cfg.HSVLower,
		upper:   cfg.HSVUpper,
	}
}

// Name returns the registry name
func (c *Color) Name() string {
	return ColorName
}

// Kind returns KindAreaRatio
func (c *Color) Kind() visnav.DistanceKind {
	return visnav.KindAreaRatio
}

// SetRange changes the HSV range used for subsequent frames
func (c *Color) SetRange(lower, upper [3]float64) error {

	for i := 0; i < 3; i++ {
		if lower[i] > upper[i] {
			return fmt.Errorf("%w: hsv lower bound exceeds upper bound",
				config.ErrInvalidConfiguration)
		}
	}

	c.mu.Lock()
	c.lower = lower
	c.upper = upper
	c.mu.Unlock()

	return nil
}

// Range returns the HSV range in use
func (c *Color) Range() ([3]float64, [3]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lower, c.upper
}

// Detect finds the largest blob within the HSV range
func (c *Color) Detect(frame gocv.Mat) visnav.DetectionResult {

	if frame.Empty() {
		return visnav.NoDetection(0, 0)
	}

	w, h := c.opts.fullSize(frame)
	lower, upper := c.Range()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()

	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(lower[0], lower[1], lower[2], 0),
		gocv.NewScalar(upper[0], upper[1], upper[2], 0),
		&mask,
	)

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(mask, &opened, gocv.MorphOpen, c.kernel)

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, c.kernel)

	contours := gocv.FindContours(closed, gocv.RetrievalExternal,
		gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestArea := 0.0

	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))

		if area > bestArea {
			best = i
			bestArea = area
		}
	}

	scale := c.opts.scale

	// minimum area is given in full resolution pixels
	if best < 0 || bestArea/(scale*scale) < c.minArea {
		c.setLast(nil)
		return visnav.NoDetection(w, h)
	}

	pts := contours.At(best).ToPoints()
	outline := make([]image.Point, len(pts))
	poly := make([]geometry.Point, len(pts))

	for i, p := range pts {
		poly[i] = geometry.Point{X: float64(p.X) / scale, Y: float64(p.Y) / scale}
		outline[i] = image.Pt(int(poly[i].X+0.5), int(poly[i].Y+0.5))
	}

	center, _ := geometry.Centroid(poly)
	ratio := bestArea / float64(frame.Rows()*frame.Cols())

	c.setLast(&blob{outline: outline, center: center, ratio: ratio})

	return visnav.DetectionResult{
		Detected:       true,
		CenterX:        center.X,
		CenterY:        center.Y,
		DistanceMetric: ratio,
		Kind:           visnav.KindAreaRatio,
		ApparentSize:   bestArea / (scale * scale),
		FrameWidth:     w,
		FrameHeight:    h,
	}
}

func (c *Color) setLast(b *blob) {
	c.mu.Lock()
	c.last = b
	c.mu.Unlock()
}

// Annotate outlines the last blob found and marks its centroid
func (c *Color) Annotate(img *gocv.Mat) {

	c.mu.Lock()
	b := c.last
	c.mu.Unlock()

	if b == nil {
		return
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{b.outline})
	defer pv.Close()

	gocv.Polylines(img, pv, true, render.Cyan, 2)

	ctr := image.Pt(int(b.center.X+0.5), int(b.center.Y+0.5))
	gocv.Circle(img, ctr, 5, render.Cyan, -1)

	poly := make([]geometry.Point, len(b.outline))
	for i, p := range b.outline {
		poly[i] = geometry.Point{X: float64(p.X), Y: float64(p.Y)}
	}

	render.TargetLabel(img, poly, fmt.Sprintf("area %.1f%%", b.ratio*100),
		render.Cyan, render.LabelFont())
}

// Close releases the morphology kernel
func (c *Color) Close() error {
	return c.kernel.Close()
}
