package engine

import (
	"context"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/mode"
	"gocv.io/x/gocv"
	"sync"
	"time"
)

// Run executes the control loop, one tick per frame read from src, until a
// Quit event arrives or ctx is cancelled.  Events are read from the events
// channel and from the renderers.  The loop always ends with a final neutral
// command.  It returns ctx.Err() when cancelled and nil after Quit.
func (e *Engine) Run(ctx context.Context, src FrameSource, events <-chan mode.Event) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if e.reconnectEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.maintainLink(ctx)
		}()
	}

	e.l.Info("Control loop started", "detector", e.registry.Active().Name(),
		"mode", e.machine.Mode(), "link", e.link.Name(), "decoupled", e.decoupled)

	var err error

	if e.decoupled {
		err = e.runDecoupled(ctx, src, events, &wg)
	} else {
		err = e.runCoupled(ctx, src, events)
	}

	// the final stop is sent even when ctx is cancelled
	e.Shutdown(context.Background())

	cancel()
	wg.Wait()

	e.l.Info("Control loop stopped", "ticks", e.ticks)

	return err
}

// runCoupled reads, detects and controls on the calling goroutine
func (e *Engine) runCoupled(ctx context.Context, src FrameSource,
	events <-chan mode.Event) error {

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if e.drainEvents(events) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok := src.Read(&frame)

		if !ok {
			// no frame available is a tick without detection
			e.l.Trace("Frame not available")
			frame.Close()
			frame = gocv.NewMat()
		}

		rep := e.Tick(frame, e.now())

		if e.render(&frame, rep) {
			return nil
		}

		if !ok {
			time.Sleep(idleDelay)
		}
	}
}

// runDecoupled reads and detects in a goroutine handing results to the
// control loop through a single slot
func (e *Engine) runDecoupled(ctx context.Context, src FrameSource,
	events <-chan mode.Event, wg *sync.WaitGroup) error {

	latest := visnav.NewLatest[visnav.DetectionResult]()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer latest.Close()
		e.detectLoop(ctx, src, latest)
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	var seen uint64

	for {
		if e.drainEvents(events) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, open := <-latest.Ready():
			if !open {
				return ctx.Err()
			}
		}

		det, seq := latest.Snapshot()

		if seq == seen {
			continue
		}

		seen = seq

		rep := e.Step(det, e.now())

		e.displayMu.Lock()
		e.display.CopyTo(&frame)
		e.displayMu.Unlock()

		if e.render(&frame, rep) {
			return nil
		}
	}
}

// detectLoop acquires frames and runs detection until ctx is cancelled
func (e *Engine) detectLoop(ctx context.Context, src FrameSource,
	latest *visnav.Latest[visnav.DetectionResult]) {

	frame := gocv.NewMat()
	defer frame.Close()

	for ctx.Err() == nil {

		if !src.Read(&frame) {
			latest.Put(visnav.NoDetection(0, 0))
			time.Sleep(idleDelay)
			continue
		}

		det := e.detect(frame)

		e.displayMu.Lock()
		frame.CopyTo(&e.display)
		e.displayMu.Unlock()

		latest.Put(det)
	}
}

// drainEvents applies every queued event without blocking and returns true
// once Quit has been received
func (e *Engine) drainEvents(events <-chan mode.Event) bool {

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// no more operator input, keep running
				return e.machine.Done()
			}
			e.HandleEvent(ev, e.now())

		default:
			return e.machine.Done()
		}
	}
}

// render calls the render hooks and applies the events they return.  It
// returns true once Quit has been received.
func (e *Engine) render(frame *gocv.Mat, rep Report) bool {

	for _, r := range e.renderers {
		if ev, ok := r.Render(frame, rep); ok {
			e.HandleEvent(ev, e.now())
		}
	}

	return e.machine.Done()
}

// maintainLink reconnects the link whenever it is down
func (e *Engine) maintainLink(ctx context.Context) {

	ticker := time.NewTicker(e.reconnectEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if e.link.Connected() {
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
		ok := e.link.Connect(cctx)
		cancel()

		if ok {
			e.l.Info("Link reconnected", "link", e.link.Name())
		} else {
			e.l.Debug("Link reconnect failed", "link", e.link.Name())
		}
	}
}
