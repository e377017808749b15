package render

import (
	"fmt"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/mode"
	"github.com/swdee/go-visnav/wire"
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// panelAlpha is the opacity of the HUD text panel
const panelAlpha = 0.7

// Status is the engine state shown on the HUD for one tick
type Status struct {
	Mode      mode.Mode
	Detector  string
	Detection visnav.DetectionResult
	// Signal is the arbitrated command of the tick
	Signal visnav.ControlSignal
	LED    bool
	// Transmitted is false when the link was unavailable and the commands
	// were not sent
	Transmitted bool
	FPS         float64
}

// HUDLines returns the text lines of the HUD panel
func HUDLines(s Status) []string {

	lines := []string{
		fmt.Sprintf("detector: %s", s.Detector),
	}

	if s.Detection.Detected {
		lines = append(lines,
			fmt.Sprintf("target: %s", s.Detection),
			fmt.Sprintf("offset: %+.0fpx", s.Detection.LateralOffset()),
		)
	} else {
		lines = append(lines, "target: none")
	}

	for _, cmd := range wire.Commands(s.Signal, s.LED) {
		switch cmd.Channel {
		case wire.LED:
			lines = append(lines, fmt.Sprintf("%-8s %5t [%3d]", cmd.Channel,
				s.LED, cmd.Value))
		default:
			lines = append(lines, fmt.Sprintf("%-8s %+.2f [%3d]", cmd.Channel,
				wire.Decode(cmd.Value), cmd.Value))
		}
	}

	if s.FPS > 0 {
		lines = append(lines, fmt.Sprintf("fps: %.1f", s.FPS))
	}

	return lines
}

// HUD draws the mode banner, frame center line, target offset, command values
// and link state on the image
func HUD(img *gocv.Mat, s Status) error {

	w, h := img.Cols(), img.Rows()

	// frame center line the lateral offset is measured from
	gocv.Line(img, image.Pt(w/2, 0), image.Pt(w/2, h), Gray, 1)

	if s.Detection.Detected {
		cy := int(s.Detection.CenterY + 0.5)
		cx := int(s.Detection.CenterX + 0.5)
		gocv.Line(img, image.Pt(w/2, cy), image.Pt(cx, cy), Yellow, 2)
	}

	// mode banner
	banner := BannerFont()
	topLabel(w, s.Mode.String(), ModeColor(s.Mode), banner).draw(img, banner)

	if !s.Transmitted {
		warn := WarningFont()
		topLabel(w, "NOT TRANSMITTED", Red, warn).draw(img, warn)
	}

	lines := HUDLines(s)
	at := image.Pt(panelPad, h-len(lines)*panelLineHeight-3*panelPad)

	return Panel(img, lines, at, White, panelAlpha)
}

// topLabel places a label along the top edge of a frame of the given width
func topLabel(width int, text string, clr color.RGBA, font Font) label {
	size, _ := font.Box(text)
	return placeLabel(image.Rect(0, size.Y, width, size.Y), text, clr, font)
}
