package viewer

import (
	"github.com/swdee/go-visnav/mode"
	"gocv.io/x/gocv"
)

// keyDelay is the time in milliseconds to wait for a key press per frame
const keyDelay = 1

// Window shows frames in a local GUI window and reads keyboard input
type Window struct {
	w *gocv.Window
}

// NewWindow opens a window with the given title
func NewWindow(name string) *Window {
	return &Window{w: gocv.NewWindow(name)}
}

// Show displays the image and polls the keyboard.  Returns the event bound
// to the key pressed, if any.
func (w *Window) Show(img gocv.Mat) (mode.Event, bool) {

	if !img.Empty() {
		w.w.IMShow(img)
	}

	return mode.KeyEvent(w.w.WaitKey(keyDelay))
}

// Close destroys the window
func (w *Window) Close() error {
	return w.w.Close()
}
