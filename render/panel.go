package render

import (
	"fmt"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"image"
	"image/color"
	"image/draw"
)

const (
	// panelLineHeight is the vertical advance between panel text lines
	panelLineHeight = 15
	// panelPad is the margin around the panel text
	panelPad = 6
)

// PanelImage rasterizes lines of text onto an opaque black RGBA image sized
// to fit them
func PanelImage(lines []string, fg color.RGBA) *image.RGBA {

	face := basicfont.Face7x13
	width := 0

	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > width {
			width = w
		}
	}

	rgba := image.NewRGBA(image.Rect(0, 0, width+2*panelPad,
		len(lines)*panelLineHeight+2*panelPad))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}),
		image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(fg),
		Face: face,
	}

	for i, line := range lines {
		// dot is the baseline of the line
		dr.Dot = fixed.P(panelPad, panelPad+(i+1)*panelLineHeight-face.Descent)
		dr.DrawString(line)
	}

	return rgba
}

// Panel blends a text panel onto the image with its top left corner at the
// given point.  Alpha is the opacity of the panel, the part of the panel
// falling outside the image is clipped.
func Panel(img *gocv.Mat, lines []string, at image.Point, fg color.RGBA,
	alpha float64) error {

	if len(lines) == 0 {
		return nil
	}

	rgba := PanelImage(lines, fg)

	area := rgba.Bounds().Add(at).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if area.Empty() {
		return nil
	}

	src, err := gocv.NewMatFromBytes(rgba.Bounds().Dy(), rgba.Bounds().Dx(),
		gocv.MatTypeCV8UC4, rgba.Pix)

	if err != nil {
		return fmt.Errorf("error creating Mat from panel: %w", err)
	}

	defer src.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)

	// offset of the visible part within the panel
	off := area.Min.Sub(at)

	srcROI := bgr.Region(image.Rect(off.X, off.Y, off.X+area.Dx(), off.Y+area.Dy()))
	defer srcROI.Close()

	dstROI := img.Region(area)
	defer dstROI.Close()

	gocv.AddWeighted(dstROI, 1-alpha, srcROI, alpha, 0, &dstROI)

	return nil
}
