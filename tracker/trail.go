// Package tracker keeps the recent history of target centers used to draw a
// trail on the overlay.
package tracker

import "sync"

// NoID is the trail key used for targets without an identity, such as color
// blobs
const NoID = -1

// Point represents the x,y pixel coordinates of a target center
type Point struct {
	X, Y int
}

// Track represents the center history of one target
type Track struct {
	points []Point
}

// Trail is the struct to keep a history of target centers used for drawing
// a trail
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by target id
	history map[int]*Track
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the maximum number
// of most recent points kept per target
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int]*Track),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int]*Track)
}

// Add records the center of a target to its history
func (t *Trail) Add(id int, x, y float64) {
	t.Lock()
	defer t.Unlock()

	if t.size <= 0 {
		return
	}

	// init map if no history exists yet for target id
	track, exists := t.history[id]

	if !exists {
		track = &Track{}
		t.history[id] = track
	}

	track.points = append(track.points, Point{
		X: int(x + 0.5),
		Y: int(y + 0.5),
	})

	// check if history is exceeded and drop oldest point
	if len(track.points) > t.size {
		track.points = track.points[1:]
	}
}

// Retain drops the history of every target other than id
func (t *Trail) Retain(id int) {
	t.Lock()
	defer t.Unlock()

	for k := range t.history {
		if k != id {
			delete(t.history, k)
		}
	}
}

// GetPoints gets a copy of the point history for a specific target id
func (t *Trail) GetPoints(id int) []Point {
	t.Lock()
	defer t.Unlock()

	if track, exists := t.history[id]; exists {
		return append([]Point(nil), track.points...)
	}

	// no history yet
	return nil
}

// IDs returns the ids of every target with history
func (t *Trail) IDs() []int {
	t.Lock()
	defer t.Unlock()

	ids := make([]int, 0, len(t.history))
	for id := range t.history {
		ids = append(ids, id)
	}

	return ids
}
