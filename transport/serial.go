package transport

import (
	"context"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/wire"
	"go.bug.st/serial"
	"io"
	"sync"
)

// Port is the minimal interface needed from a serial port
type Port interface {
	io.Writer
	io.Closer
}

// PortOpener opens a serial port, replaced in tests
type PortOpener func(path string, mode *serial.Mode) (Port, error)

func openSerialPort(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Serial writes commands to a bridge microcontroller over a serial port.
// Each command is sent as a text line "<channel>:<value>\n" which the bridge
// forwards to the car.
type Serial struct {
	// connMu serializes opens, mu guards port
	connMu sync.Mutex
	mu     sync.Mutex
	l      hclog.Logger
	cfg    config.Serial
	open   PortOpener
	port   Port
}

// SerialOption configures a Serial link
type SerialOption func(*Serial)

// WithPortOpener replaces the function used to open the serial port
func WithPortOpener(open PortOpener) SerialOption {
	return func(s *Serial) {
		s.open = open
	}
}

// NewSerial returns a serial link for the configured port
func NewSerial(cfg config.Serial, l hclog.Logger, opts ...SerialOption) (*Serial, error) {

	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: serial port not set", config.ErrInvalidConfiguration)
	}

	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	s := &Serial{
		l:    l,
		cfg:  cfg,
		open: openSerialPort,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Name returns the link description
func (s *Serial) Name() string {
	return "serial:" + s.cfg.Port
}

// Mode returns the serial settings used to open the port, 8N1 at the
// configured baud rate
func (s *Serial) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Connect opens the serial port
func (s *Serial) Connect(ctx context.Context) bool {

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.Connected() {
		return true
	}

	if ctx.Err() != nil {
		return false
	}

	port, err := s.open(s.cfg.Port, s.Mode())

	if err != nil {
		s.l.Error("failed to open serial port", "port", s.cfg.Port, "err", err)

		if ports, lerr := serial.GetPortsList(); lerr == nil {
			s.l.Info("available serial ports", "ports", ports)
		}

		return false
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	s.l.Info("serial port opened", "port", s.cfg.Port, "baud", s.cfg.BaudRate)

	return true
}

// SerialLine formats a command as the bridge line protocol "<channel>:<value>\n"
func SerialLine(ch wire.Channel, value byte) string {
	return fmt.Sprintf("%d:%d\n", byte(ch), value)
}

// Send writes a command line to the port
func (s *Serial) Send(ch wire.Channel, value byte) bool {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return false
	}

	line := SerialLine(ch, value)

	if _, err := io.WriteString(s.port, line); err != nil {
		s.l.Warn("write failed, closing port", "channel", ch.String(), "err", err)
		s.close()
		return false
	}

	s.l.Trace("write", "channel", ch.String(), "value", value)

	return true
}

// Connected returns true while the port is open
func (s *Serial) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Disconnect closes the port
func (s *Serial) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
}

// close releases the port, caller must hold the lock
func (s *Serial) close() {

	if s.port == nil {
		return
	}

	if err := s.port.Close(); err != nil {
		s.l.Debug("close error", "err", err)
	}

	s.port = nil
}
