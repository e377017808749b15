package geometry

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/mat"
	"math"
)

var (
	// ErrDegenerate is returned when the corners do not describe a usable
	// marker, eg: zero apparent size
	ErrDegenerate = errors.New("degenerate marker geometry")
)

// Estimator converts the corners of a square marker of known size into a
// distance measured in the units of the marker size.  Implementations are
// interchangeable, the controller only depends on the units being the same as
// the configured target distance.
type Estimator interface {
	Distance(corners Quad) (float64, error)
}

// Pinhole estimates distance from the apparent marker size and a calibrated
// focal length using the pinhole camera model
type Pinhole struct {
	// ReferenceSize is the printed marker side length, eg: in centimeters
	ReferenceSize float64
	// FocalLength is the camera focal length in pixels
	FocalLength float64
}

// NewPinhole returns a pinhole estimator for a marker of the given size
func NewPinhole(referenceSize, focalLengthPx float64) (*Pinhole, error) {

	if referenceSize <= 0 {
		return nil, fmt.Errorf("reference size must be > 0, got %v", referenceSize)
	}

	if focalLengthPx <= 0 {
		return nil, fmt.Errorf("focal length must be > 0, got %v", focalLengthPx)
	}

	return &Pinhole{ReferenceSize: referenceSize, FocalLength: focalLengthPx}, nil
}

// Distance returns the estimated distance to the marker
func (p *Pinhole) Distance(corners Quad) (float64, error) {

	size := corners.MeanSideLength()

	if size <= 0 || math.IsNaN(size) {
		return 0, ErrDegenerate
	}

	return PinholeDistance(p.ReferenceSize, p.FocalLength, size), nil
}

// Calibrated estimates the marker depth by recovering its pose from a 3x3
// camera matrix.  The plane to image homography is solved from the four
// corners and decomposed into a translation, the z component of which is
// returned.  Lens distortion is not corrected.
type Calibrated struct {
	referenceSize float64
	// kInv is the inverse of the camera matrix
	kInv *mat.Dense
	// object holds the marker corners in the marker plane
	object [4]Point
}

// NewCalibrated returns an estimator using the given camera matrix in row
// major order [fx 0 cx; 0 fy cy; 0 0 1]
func NewCalibrated(referenceSize float64, cameraMatrix [9]float64) (*Calibrated, error) {

	if referenceSize <= 0 {
		return nil, fmt.Errorf("reference size must be > 0, got %v", referenceSize)
	}

	k := mat.NewDense(3, 3, cameraMatrix[:])

	var kInv mat.Dense

	if err := kInv.Inverse(k); err != nil {
		return nil, fmt.Errorf("camera matrix is not invertible: %w", err)
	}

	h := referenceSize / 2

	return &Calibrated{
		referenceSize: referenceSize,
		kInv:          &kInv,
		// same corner order as the detector, marker y axis pointing up
		object: [4]Point{{-h, h}, {h, h}, {h, -h}, {-h, -h}},
	}, nil
}

// Distance returns the depth of the marker along the camera optical axis
func (c *Calibrated) Distance(corners Quad) (float64, error) {

	if corners.Area() <= 0 {
		return 0, ErrDegenerate
	}

	// build the 8x9 DLT system from normalized image coordinates
	a := mat.NewDense(8, 9, nil)

	for i, obj := range c.object {
		u, v := c.normalize(corners[i])
		x, y := obj.X, obj.Y

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}

	var svd mat.SVD

	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return 0, fmt.Errorf("%w: homography factorization failed", ErrDegenerate)
	}

	var v mat.Dense
	svd.VTo(&v)

	// the homography is the right singular vector of the smallest singular
	// value, the last column of V
	h := mat.Col(nil, 8, &v)

	h1 := math.Sqrt(h[0]*h[0] + h[3]*h[3] + h[6]*h[6])
	h2 := math.Sqrt(h[1]*h[1] + h[4]*h[4] + h[7]*h[7])

	if h1+h2 < 1e-12 {
		return 0, ErrDegenerate
	}

	lambda := 2 / (h1 + h2)
	tz := math.Abs(lambda * h[8])

	return tz, nil
}

// normalize maps a pixel coordinate to normalized camera coordinates
func (c *Calibrated) normalize(p Point) (float64, float64) {

	var out mat.VecDense
	out.MulVec(c.kInv, mat.NewVecDense(3, []float64{p.X, p.Y, 1}))

	w := out.AtVec(2)

	return out.AtVec(0) / w, out.AtVec(1) / w
}
