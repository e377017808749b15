package render

import (
	"github.com/swdee/go-visnav/geometry"
	"gocv.io/x/gocv"
	"image"
	"image/color"
	"math"
)

// label is a text box drawn above an annotated shape
type label struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Bounds returns the integer bounding rectangle of a set of points
func Bounds(pts []geometry.Point) image.Rectangle {

	if len(pts) == 0 {
		return image.Rectangle{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// Outline draws a closed polygon through the points
func Outline(img *gocv.Mat, pts []geometry.Point, clr color.RGBA, thickness int) {

	if len(pts) < 2 {
		return
	}

	poly := make([]image.Point, len(pts))
	for i, p := range pts {
		poly[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{poly})
	defer pv.Close()

	gocv.Polylines(img, pv, true, clr, thickness)
}

// placeLabel calculates where the label for a shape with the given bounding
// box is drawn.  The label sits above the box, or below it when the box
// touches the top of the frame.
func placeLabel(box image.Rectangle, text string, clr color.RGBA, font Font) label {

	size, origin := font.Box(text)

	var x int

	switch font.Anchor {
	case AnchorCenter:
		x = (box.Min.X + box.Max.X - size.X) / 2
	case AnchorRight:
		x = box.Max.X - size.X
	default:
		x = box.Min.X
	}

	y := box.Min.Y - size.Y

	if y < 0 {
		y = box.Max.Y
	}

	rect := image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+size.X, y+size.Y)}

	return label{
		rect:    rect,
		clr:     clr,
		text:    text,
		textPos: rect.Min.Add(origin),
	}
}

// draw renders the label box and its text
func (lb label) draw(img *gocv.Mat, font Font) {
	gocv.Rectangle(img, lb.rect, lb.clr, -1)
	font.put(img, lb.text, lb.textPos)
}

// TargetLabel draws a text label above the shape described by pts
func TargetLabel(img *gocv.Mat, pts []geometry.Point, text string,
	clr color.RGBA, font Font) {

	if len(pts) == 0 {
		return
	}

	placeLabel(Bounds(pts), text, clr, font).draw(img, font)
}
