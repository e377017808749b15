package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav"
	"github.com/swdee/go-visnav/mode"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultVizAddr is used when the viz endpoint is enabled without an address
const DefaultVizAddr = "127.0.0.1:7070"

// publishOnce guards registration in the process wide expvar namespace
var publishOnce sync.Once

// Metrics exposes live detection, command and link values via expvar
type Metrics struct {
	input  *expvar.Map
	output *expvar.Map
	link   *expvar.Map
}

// NewMetrics returns metrics with every value initialized to zero
func NewMetrics() *Metrics {

	m := &Metrics{
		input:  new(expvar.Map).Init(),
		output: new(expvar.Map).Init(),
		link:   new(expvar.Map).Init(),
	}

	for _, k := range []string{"detected", "cx", "cy", "offset", "metric"} {
		m.input.Set(k, new(expvar.Float))
	}

	for _, k := range []string{"throttle", "steering", "omega", "mode"} {
		m.output.Set(k, new(expvar.Float))
	}

	m.link.Set("connected", new(expvar.Int))
	m.link.Set("sent", new(expvar.Int))
	m.link.Set("failures", new(expvar.Int))
	m.link.Set("ticks", new(expvar.Int))

	return m
}

// UpdateInput publishes the latest detection
func (m *Metrics) UpdateInput(det visnav.DetectionResult) {

	if m == nil {
		return
	}

	if !det.Detected {
		setFloat(m.input, "detected", 0)
		return
	}

	setFloat(m.input, "detected", 1)
	setFloat(m.input, "cx", det.CenterX)
	setFloat(m.input, "cy", det.CenterY)
	setFloat(m.input, "offset", det.LateralOffset())
	setFloat(m.input, "metric", det.DistanceMetric)
}

// UpdateOutput publishes the arbitrated command and mode of a tick
func (m *Metrics) UpdateOutput(md mode.Mode, sig visnav.ControlSignal) {

	if m == nil {
		return
	}

	setFloat(m.output, "throttle", sig.Throttle)
	setFloat(m.output, "steering", sig.Steering)
	setFloat(m.output, "omega", sig.Omega)
	setFloat(m.output, "mode", float64(md))
}

// Tick counts a control tick
func (m *Metrics) Tick() {
	if m != nil {
		m.link.Add("ticks", 1)
	}
}

// Sent counts commands written to the link
func (m *Metrics) Sent(n int) {
	if m != nil {
		m.link.Add("sent", int64(n))
	}
}

// Failed counts commands the link did not accept
func (m *Metrics) Failed(n int) {
	if m != nil {
		m.link.Add("failures", int64(n))
	}
}

// Connected records the link state
func (m *Metrics) Connected(ok bool) {

	if m == nil {
		return
	}

	var v int64
	if ok {
		v = 1
	}

	if i, isInt := m.link.Get("connected").(*expvar.Int); isInt {
		i.Set(v)
	}
}

// Snapshot returns the current values as generic JSON
func (m *Metrics) Snapshot() map[string]any {

	out := map[string]any{}

	for name, v := range map[string]*expvar.Map{
		"input": m.input, "output": m.output, "link": m.link} {

		var decoded map[string]any
		_ = json.Unmarshal([]byte(v.String()), &decoded)
		out[name] = decoded
	}

	return out
}

// Handler returns an HTTP handler serving the metrics as JSON
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}

// Publish registers the metrics in the process wide expvar namespace so they
// are served on /debug/vars.  Only the first call has effect.
func (m *Metrics) Publish() {
	publishOnce.Do(func() {
		expvar.Publish("visnav_input", m.input)
		expvar.Publish("visnav_output", m.output)
		expvar.Publish("visnav_link", m.link)
	})
}

// Viz is the HTTP endpoint used to plot live values
type Viz struct {
	server *http.Server
	addr   net.Addr
	l      hclog.Logger
}

// StartViz publishes the metrics and serves them on addr under /debug/vars
// and /visnav
func StartViz(addr string, m *Metrics, l hclog.Logger) (*Viz, error) {

	if addr == "" {
		addr = DefaultVizAddr
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	ln, err := net.Listen("tcp", addr)

	if err != nil {
		return nil, err
	}

	m.Publish()

	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/visnav", m.Handler())

	v := &Viz{
		server: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr(),
		l:      l,
	}

	go func() {
		if err := v.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Viz server error", "err", err)
		}
	}()

	l.Info("Viz endpoint started", "addr", v.addr.String())

	return v, nil
}

// Addr returns the address the endpoint listens on
func (v *Viz) Addr() string {
	return v.addr.String()
}

// Close shuts the endpoint down
func (v *Viz) Close(ctx context.Context) error {
	return v.server.Shutdown(ctx)
}

// setFloat updates an expvar.Float stored inside a map
func setFloat(m *expvar.Map, key string, value float64) {

	if v := m.Get(key); v != nil {
		if f, ok := v.(*expvar.Float); ok {
			f.Set(value)
			return
		}
	}

	f := new(expvar.Float)
	f.Set(value)
	m.Set(key, f)
}
