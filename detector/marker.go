package detector

import (
	"fmt"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/geometry"
	"github.com/swdee/go-visnav/render"
	"gocv.io/x/gocv"
	"strings"
	"sync"
)

// cornerRefineSubpix is the ArUco sub-pixel corner refinement method
const cornerRefineSubpix = 1

// MarkerName is the registry name of the fiducial marker detector
const MarkerName = "aruco"

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"DICT_4X4_50":         gocv.ArucoDict4x4_50,
	"DICT_4X4_100":        gocv.ArucoDict4x4_100,
	"DICT_4X4_250":        gocv.ArucoDict4x4_250,
	"DICT_5X5_100":        gocv.ArucoDict5x5_100,
	"DICT_5X5_250":        gocv.ArucoDict5x5_250,
	"DICT_6X6_250":        gocv.ArucoDict6x6_250,
	"DICT_7X7_250":        gocv.ArucoDict7x7_250,
	"DICT_ARUCO_ORIGINAL": gocv.ArucoDictArucoOriginal,
}

// DictionaryCode returns the predefined ArUco dictionary for a name such as
// "DICT_6X6_250"
func DictionaryCode(name string) (gocv.ArucoDictionaryCode, error) {

	code, ok := dictionaries[strings.ToUpper(name)]

	if !ok {
		return 0, fmt.Errorf("%w: unknown aruco dictionary %q",
			config.ErrInvalidConfiguration, name)
	}

	return code, nil
}

// candidate is a marker found in a frame
type candidate struct {
	id       int
	corners  geometry.Quad
	size     float64
	distance float64
}

// markerFrame is the state of the last processed frame kept for Annotate
type markerFrame struct {
	all    []candidate
	target int
	result visnav.DetectionResult
}

// Marker detects square fiducial markers of known size and estimates their
// distance with a geometry.Estimator
type Marker struct {
	opts     options
	det      gocv.ArucoDetector
	est      geometry.Estimator
	targetID *int

	mu   sync.Mutex
	last markerFrame
}

// NewMarker returns an ArUco marker detector using the configured dictionary
// and detector parameters
func NewMarker(cfg config.Aruco, est geometry.Estimator, opts ...Option) (*Marker, error) {

	code, err := DictionaryCode(cfg.DictionaryType)

	if err != nil {
		return nil, err
	}

	if est == nil {
		return nil, fmt.Errorf("%w: marker detector requires an estimator",
			config.ErrInvalidConfiguration)
	}

	params := gocv.NewArucoDetectorParameters()
	params.SetAdaptiveThreshWinSizeMin(cfg.AdaptiveThreshWinSizeMin)
	params.SetAdaptiveThreshWinSizeMax(cfg.AdaptiveThreshWinSizeMax)
	params.SetAdaptiveThreshWinSizeStep(cfg.AdaptiveThreshWinSizeStep)
	params.SetMinMarkerPerimeterRate(cfg.MinMarkerPerimeterRate)
	params.SetMaxMarkerPerimeterRate(cfg.MaxMarkerPerimeterRate)
	params.SetPolygonalApproxAccuracyRate(cfg.PolygonalApproxAccuracyRate)
	params.SetCornerRefinementMethod(cornerRefineSubpix)
	params.SetCornerRefinementWinSize(cfg.CornerRefinementWinSize)

	dict := gocv.GetPredefinedDictionary(code)

	m := &Marker{
		opts:     newOptions(opts),
		det:      gocv.NewArucoDetectorWithParams(dict, params),
		est:      est,
		targetID: cfg.TargetID,
	}

	return m, nil
}

// Name returns the registry name
func (m *Marker) Name() string {
	return MarkerName
}

// Kind returns KindDistance, the metric is centimeters
func (m *Marker) Kind() visnav.DistanceKind {
	return visnav.KindDistance
}

// Detect finds markers in the frame and returns the nearest one
func (m *Marker) Detect(frame gocv.Mat) visnav.DetectionResult {

	if frame.Empty() {
		return visnav.NoDetection(0, 0)
	}

	w, h := m.opts.fullSize(frame)

	corners, ids, _ := m.det.DetectMarkers(frame)

	all := make([]candidate, 0, len(corners))

	for i, pts := range corners {

		if len(pts) != 4 || i >= len(ids) {
			continue
		}

		all = append(all, candidate{
			id:      ids[i],
			corners: toQuad(pts, m.opts.scale),
		})
	}

	best := selectTarget(all, m.targetID, m.est)

	if len(all) > 0 {
		m.opts.l.Trace("Markers found", "count", len(all), "target", best)
	}
	res := visnav.NoDetection(w, h)

	if best >= 0 {
		c := all[best]
		center := c.corners.Center()
		id := c.id

		res = visnav.DetectionResult{
			Detected:       true,
			CenterX:        center.X,
			CenterY:        center.Y,
			DistanceMetric: c.distance,
			Kind:           visnav.KindDistance,
			TargetID:       &id,
			ApparentSize:   c.size,
			FrameWidth:     w,
			FrameHeight:    h,
		}
	}

	m.mu.Lock()
	m.last = markerFrame{all: all, target: best, result: res}
	m.mu.Unlock()

	return res
}

// selectTarget estimates the distance of every candidate and returns the
// index of the nearest one, the one with the largest apparent size.  Equal
// sizes keep the first found.  When targetID is set only that marker id is
// considered.  Candidates whose distance cannot be estimated are skipped.
// Returns -1 if no candidate qualifies.
func selectTarget(all []candidate, targetID *int, est geometry.Estimator) int {

	best := -1

	for i := range all {
		c := &all[i]

		if targetID != nil && c.id != *targetID {
			continue
		}

		c.size = c.corners.MeanSideLength()

		d, err := est.Distance(c.corners)

		if err != nil {
			continue
		}

		c.distance = d

		if best < 0 || c.size > all[best].size {
			best = i
		}
	}

	return best
}

// toQuad converts detector corners to full resolution coordinates
func toQuad(pts []gocv.Point2f, scale float64) geometry.Quad {

	var q geometry.Quad

	for i := 0; i < 4; i++ {
		q[i] = geometry.Point{
			X: float64(pts[i].X) / scale,
			Y: float64(pts[i].Y) / scale,
		}
	}

	return q
}

// Annotate draws every marker found in the last frame, the target is
// highlighted with a halo and its distance
func (m *Marker) Annotate(img *gocv.Mat) {

	m.mu.Lock()
	last := m.last
	m.mu.Unlock()

	if len(last.all) == 0 {
		return
	}

	corners := make([][]gocv.Point2f, len(last.all))
	ids := make([]int, len(last.all))

	for i, c := range last.all {
		pts := make([]gocv.Point2f, 4)

		for j, p := range c.corners {
			pts[j] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
		}

		corners[i] = pts
		ids[i] = c.id
	}

	gocv.ArucoDrawDetectedMarkers(*img, corners, ids, gocv.NewScalar(0, 255, 0, 0))

	if last.target < 0 {
		return
	}

	t := last.all[last.target]
	clr := render.ColorForID(t.id)

	render.Halo(img, t.corners[:], 6, clr, 2)
	render.TargetLabel(img, t.corners[:],
		fmt.Sprintf("ID %d | %.1fcm", t.id, t.distance), clr, render.LabelFont())
}

// Close releases the native detector
func (m *Marker) Close() error {
	return m.det.Close()
}
