package transport

import (
	"context"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/wire"
	"sync"
)

// Sim is a simulated link that logs every write instead of transmitting it.
// It is used when no device is found and in tests.
type Sim struct {
	mu        sync.Mutex
	l         hclog.Logger
	connected bool
	writes    []wire.Command
	// fail makes every Send report failure
	fail bool
}

// NewSim returns a simulated link
func NewSim(l hclog.Logger) *Sim {

	if l == nil {
		l = hclog.NewNullLogger()
	}

	return &Sim{l: l}
}

// Name returns the link description
func (s *Sim) Name() string {
	return "simulation"
}

// Connect always succeeds
func (s *Sim) Connect(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return true
}

// Send records the write
func (s *Sim) Send(ch wire.Channel, value byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.fail {
		return false
	}

	s.writes = append(s.writes, wire.Command{Channel: ch, Value: value})
	s.l.Info("would send", "channel", ch.String(), "value", value)

	return true
}

// Connected returns true after Connect until Disconnect
func (s *Sim) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect marks the link down
func (s *Sim) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// SetFail makes subsequent writes fail while the link still reports itself
// connected
func (s *Sim) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Writes returns a copy of every successful write in order
func (s *Sim) Writes() []wire.Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]wire.Command, len(s.writes))
	copy(out, s.writes)

	return out
}

// Last returns the last value written to a channel
func (s *Sim) Last(ch wire.Channel) (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.writes) - 1; i >= 0; i-- {
		if s.writes[i].Channel == ch {
			return s.writes[i].Value, true
		}
	}

	return 0, false
}
