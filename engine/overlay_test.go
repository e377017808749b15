package engine

import (
	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-visnav/viewer"
	"gocv.io/x/gocv"
	"testing"
)

func TestOverlayPublishesFrame(t *testing.T) {

	f := newFixture(t, nil)
	stream := viewer.NewStream()

	o := NewOverlay(f.e.Registry(), f.e.Trail(), nil, stream, nil)
	defer o.Close()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	rep := f.e.Step(target(50, 60), f.at(0))
	rep = f.e.Step(target(60, 60), f.at(10))

	_, ok := o.Render(&img, rep)
	assert.False(t, ok)

	frame, seq := stream.Frame()
	assert.Equal(t, uint64(1), seq)
	assert.NotEmpty(t, frame)

	// the source frame is left untouched
	gray := img.Reshape(1, 0)
	defer gray.Close()
	assert.Equal(t, 0, gocv.CountNonZero(gray))
}

func TestOverlayEmptyFrame(t *testing.T) {

	f := newFixture(t, nil)
	stream := viewer.NewStream()

	o := NewOverlay(f.e.Registry(), f.e.Trail(), nil, stream, nil)
	defer o.Close()

	empty := gocv.NewMat()
	defer empty.Close()

	_, ok := o.Render(&empty, f.e.Last())
	assert.False(t, ok)

	_, seq := stream.Frame()
	assert.Zero(t, seq)
}
