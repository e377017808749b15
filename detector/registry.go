package detector

import (
	"errors"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/geometry"
	"sync"
)

// ErrUnknownDetector is returned when selecting a detector that has not been
// registered
var ErrUnknownDetector = errors.New("unknown detector")

// Registry holds the available detectors and the one currently active.  The
// active detector can be switched at runtime.
type Registry struct {
	mu     sync.Mutex
	order  []Detector
	active int
}

// NewRegistry returns a registry of the given detectors, the first one is
// active
func NewRegistry(dets ...Detector) (*Registry, error) {

	r := &Registry{}

	for _, d := range dets {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a detector, names must be unique
func (r *Registry) Register(d Detector) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index(d.Name()) >= 0 {
		return fmt.Errorf("detector %q already registered", d.Name())
	}

	r.order = append(r.order, d)
	return nil
}

func (r *Registry) index(name string) int {
	for i, d := range r.order {
		if d.Name() == name {
			return i
		}
	}
	return -1
}

// Select makes the named detector active
func (r *Registry) Select(name string) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(name)

	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownDetector, name)
	}

	r.active = i
	return nil
}

// Active returns the active detector, nil if none are registered
func (r *Registry) Active() Detector {

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return nil
	}

	return r.order[r.active]
}

// Next activates the detector following the active one in registration order
// and returns it
func (r *Registry) Next() Detector {

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return nil
	}

	r.active = (r.active + 1) % len(r.order)
	return r.order[r.active]
}

// Names returns the registered detector names in registration order
func (r *Registry) Names() []string {

	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.order))
	for i, d := range r.order {
		names[i] = d.Name()
	}

	return names
}

// Close closes every registered detector
func (r *Registry) Close() error {

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	for _, d := range r.order {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// NewEstimator returns the calibrated estimator when a camera matrix is
// configured and the pinhole estimator otherwise
func NewEstimator(cfg config.Aruco) (geometry.Estimator, error) {

	if k, ok := cfg.Matrix(); ok {
		est, err := geometry.NewCalibrated(cfg.MarkerSizeCM, k)

		if err != nil {
			return nil, err
		}

		return est, nil
	}

	est, err := geometry.NewPinhole(cfg.MarkerSizeCM, cfg.FocalLengthPx)

	if err != nil {
		return nil, err
	}

	return est, nil
}

// FromConfig builds a registry holding the marker and color detectors with
// the configured detector active.  Frames given to the detectors are expected
// to be resized by the camera scale.
func FromConfig(cfg *config.Config, l hclog.Logger) (*Registry, error) {

	if l == nil {
		l = hclog.NewNullLogger()
	}

	est, err := NewEstimator(cfg.Aruco)

	if err != nil {
		return nil, err
	}

	opts := []Option{WithScale(cfg.Camera.Scale)}

	marker, err := NewMarker(cfg.Aruco, est,
		append(opts, WithLogger(l.Named(MarkerName)))...)

	if err != nil {
		return nil, err
	}

	color := NewColor(cfg.ColorTracking,
		append(opts, WithLogger(l.Named(ColorName)))...)

	r, err := NewRegistry(marker, color)

	if err != nil {
		return nil, err
	}

	if err := r.Select(cfg.Navigation.Detector); err != nil {
		r.Close()
		return nil, err
	}

	l.Info("Detector selected", "name", cfg.Navigation.Detector,
		"estimator", fmt.Sprintf("%T", est))

	return r, nil
}
