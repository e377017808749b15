// Package preprocess prepares camera frames for target detection.
package preprocess

import (
	"fmt"
	"github.com/swdee/go-visnav/config"
	"gocv.io/x/gocv"
	"image"
)

// Pipeline defines the struct used for downscaling and blurring frames before
// they are passed to a detector
type Pipeline struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// scale is the resize factor, 1 disables resizing
	scale float64
	// blur is the Gaussian kernel size, 0 disables blurring
	blur int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
}

// NewPipeline returns a pipeline scaling frames by scale and blurring them
// with a Gaussian kernel of size blur
func NewPipeline(scale float64, blur int) (*Pipeline, error) {

	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("%w: scale must be between 0 and 1, got %v",
			config.ErrInvalidConfiguration, scale)
	}

	if blur < 0 || (blur > 0 && blur%2 == 0) {
		return nil, fmt.Errorf("%w: blur must be 0 or a positive odd number, got %d",
			config.ErrInvalidConfiguration, blur)
	}

	return &Pipeline{
		scale:   scale,
		blur:    blur,
		tempMat: gocv.NewMat(),
	}, nil
}

// FromConfig returns the pipeline for the camera section of the configuration
func FromConfig(cfg config.Camera) (*Pipeline, error) {
	return NewPipeline(cfg.Scale, cfg.Blur)
}

// Close frees memory allocated during the resize process
func (p *Pipeline) Close() error {
	return p.tempMat.Close()
}

// preCalc the scaled dimensions for a source frame size
func (p *Pipeline) preCalc(srcWidth, srcHeight int) {

	p.srcWidth = srcWidth
	p.srcHeight = srcHeight
	p.destWidth = max(1, int(float64(srcWidth)*p.scale+0.5))
	p.destHeight = max(1, int(float64(srcHeight)*p.scale+0.5))
}

// Passthrough returns true when the pipeline leaves frames unchanged
func (p *Pipeline) Passthrough() bool {
	return p.scale == 1 && p.blur == 0
}

// Process writes the prepared version of src to dest
func (p *Pipeline) Process(src gocv.Mat, dest *gocv.Mat) {

	if src.Empty() {
		return
	}

	if src.Cols() != p.srcWidth || src.Rows() != p.srcHeight {
		p.preCalc(src.Cols(), src.Rows())
	}

	if p.Passthrough() {
		src.CopyTo(dest)
		return
	}

	resized := src

	if p.scale != 1 {
		gocv.Resize(src, &p.tempMat, image.Pt(p.destWidth, p.destHeight),
			0, 0, gocv.InterpolationArea)
		resized = p.tempMat
	}

	if p.blur > 0 {
		gocv.GaussianBlur(resized, dest, image.Pt(p.blur, p.blur), 0, 0,
			gocv.BorderDefault)
		return
	}

	resized.CopyTo(dest)
}

// ScaleFactor returns the resize factor
func (p *Pipeline) ScaleFactor() float64 {
	return p.scale
}

// DestWidth returns the width of the last processed frame
func (p *Pipeline) DestWidth() int {
	return p.destWidth
}

// DestHeight returns the height of the last processed frame
func (p *Pipeline) DestHeight() int {
	return p.destHeight
}

// SrcWidth returns the width of the last source frame
func (p *Pipeline) SrcWidth() int {
	return p.srcWidth
}

// SrcHeight returns the height of the last source frame
func (p *Pipeline) SrcHeight() int {
	return p.srcHeight
}
