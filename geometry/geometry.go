package geometry

import (
	"gonum.org/v1/gonum/floats"
	"math"
)

// Point is a 2D image coordinate in pixels
type Point struct {
	X, Y float64
}

// Quad holds the four corners of a detected marker in the order top-left,
// top-right, bottom-right, bottom-left as reported by the ArUco detector
type Quad [4]Point

// PinholeDistance returns the distance to an object of known size from its
// apparent size in the image using the pinhole camera model
//
//	distance = (referenceSize * focalLengthPx) / apparentSizePx
//
// The result is in the units of referenceSize.  Callers must ensure
// apparentSizePx is greater than zero.
func PinholeDistance(referenceSize, focalLengthPx, apparentSizePx float64) float64 {
	return (referenceSize * focalLengthPx) / apparentSizePx
}

// LateralOffset returns the horizontal offset in pixels of centerX from the
// middle of a frame of the given width.  Positive values are right of center.
func LateralOffset(centerX float64, frameWidth int) float64 {
	return centerX - float64(frameWidth)/2
}

// SideLengths returns the length of each of the four sides of the quad
func (q Quad) SideLengths() [4]float64 {

	var sides [4]float64

	for i := 0; i < 4; i++ {
		a := q[i]
		b := q[(i+1)%4]
		sides[i] = floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
	}

	return sides
}

// MeanSideLength returns the average side length of the quad in pixels, used
// as the apparent size of a square marker
func (q Quad) MeanSideLength() float64 {
	sides := q.SideLengths()
	return floats.Sum(sides[:]) / 4
}

// MeanDiagonal returns the average of the two diagonals of the quad
func (q Quad) MeanDiagonal() float64 {
	d1 := floats.Distance([]float64{q[0].X, q[0].Y}, []float64{q[2].X, q[2].Y}, 2)
	d2 := floats.Distance([]float64{q[1].X, q[1].Y}, []float64{q[3].X, q[3].Y}, 2)
	return (d1 + d2) / 2
}

// Center returns the mean of the four corners
func (q Quad) Center() Point {

	var c Point

	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}

	c.X /= 4
	c.Y /= 4

	return c
}

// Area returns the area of the quad in square pixels
func (q Quad) Area() float64 {
	return PolygonArea(q[:])
}

// PolygonArea returns the unsigned area of a simple polygon using the
// shoelace formula
func PolygonArea(pts []Point) float64 {

	if len(pts) < 3 {
		return 0
	}

	sum := 0.0

	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}

	return math.Abs(sum) / 2
}

// Centroid returns the area weighted centroid of a simple polygon.  For
// degenerate polygons with zero area the mean of the vertices is returned
// instead and ok is false.
func Centroid(pts []Point) (c Point, ok bool) {

	if len(pts) == 0 {
		return Point{}, false
	}

	var a, cx, cy float64

	for i := range pts {
		j := (i + 1) % len(pts)
		cross := pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
		a += cross
		cx += (pts[i].X + pts[j].X) * cross
		cy += (pts[i].Y + pts[j].Y) * cross
	}

	if math.Abs(a) < 1e-9 {
		for _, p := range pts {
			c.X += p.X
			c.Y += p.Y
		}
		c.X /= float64(len(pts))
		c.Y /= float64(len(pts))
		return c, false
	}

	a *= 0.5

	return Point{X: cx / (6 * a), Y: cy / (6 * a)}, true
}
