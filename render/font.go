package render

import (
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// Anchor places a label against the left, middle or right of the shape or
// frame edge it annotates
type Anchor int

const (
	AnchorLeft Anchor = iota + 1
	AnchorCenter
	AnchorRight
)

// Font is a Hershey face drawn on a filled box
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	// Pad is the gap between the text and the box edge on each side
	Pad image.Point
	// Descent is extra room below the baseline for letters with tails
	Descent int
	Anchor  Anchor
}

// LabelFont is used for target labels
func LabelFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		Pad:       image.Pt(4, 4),
		Descent:   2,
		Anchor:    AnchorLeft,
	}
}

// BannerFont is used for the mode banner across the top left of the frame
func BannerFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.8,
		Color:     Black,
		Thickness: 2,
		Pad:       image.Pt(8, 6),
		Descent:   2,
		Anchor:    AnchorLeft,
	}
}

// WarningFont is used for link warnings in the top right of the frame
func WarningFont() Font {
	f := LabelFont()
	f.Anchor = AnchorRight
	return f
}

// Box returns the size of the filled box holding text and the offset of
// the text baseline origin inside that box
func (f Font) Box(text string) (size, origin image.Point) {

	sz := gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)

	size = image.Pt(sz.X+2*f.Pad.X, sz.Y+2*f.Pad.Y+f.Descent)
	origin = image.Pt(f.Pad.X, f.Pad.Y+sz.Y)

	return size, origin
}

// put draws text with its baseline origin at pt
func (f Font) put(img *gocv.Mat, text string, pt image.Point) {
	gocv.PutTextWithParams(img, text, pt, f.Face, f.Scale, f.Color,
		f.Thickness, gocv.LineAA, false)
}
