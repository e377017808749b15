package render

import (
	clipper "github.com/ctessum/go.clipper"
	"github.com/swdee/go-visnav/geometry"
	"gocv.io/x/gocv"
	"image"
	"image/color"
	"math"
)

// HaloPolygon grows the closed polygon described by pts outward by delta
// pixels with rounded corners.  Returns nil when the polygon is degenerate.
func HaloPolygon(pts []geometry.Point, delta float64) [][]image.Point {

	if len(pts) < 3 {
		return nil
	}

	// convert the points to a Clipper Path
	var path clipper.Path

	for _, p := range pts {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(p.X)),
			Y: clipper.CInt(math.Round(p.Y)),
		})
	}

	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)

	solution := co.Execute(delta)

	// convert the solution back to points
	var polys [][]image.Point

	for _, sol := range solution {

		if len(sol) < 3 {
			continue
		}

		poly := make([]image.Point, 0, len(sol))

		for _, pt := range sol {
			poly = append(poly, image.Pt(int(pt.X), int(pt.Y)))
		}

		polys = append(polys, poly)
	}

	return polys
}

// Halo draws an outline offset delta pixels around the polygon
func Halo(img *gocv.Mat, pts []geometry.Point, delta float64,
	clr color.RGBA, thickness int) {

	polys := HaloPolygon(pts, delta)

	if len(polys) == 0 {
		return
	}

	pv := gocv.NewPointsVectorFromPoints(polys)
	defer pv.Close()

	gocv.Polylines(img, pv, true, clr, thickness)
}
