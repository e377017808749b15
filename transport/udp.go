package transport

import (
	"context"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/wire"
	"net"
	"sync"
	"time"
)

// UDP sends each command as a two byte datagram of channel and value
type UDP struct {
	connMu sync.Mutex
	mu     sync.Mutex
	l      hclog.Logger
	addr   string
	conn   *net.UDPConn
}

// NewUDP returns a UDP link to the configured address
func NewUDP(cfg config.UDP, l hclog.Logger) (*UDP, error) {

	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: udp address not set", config.ErrInvalidConfiguration)
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	return &UDP{l: l, addr: cfg.Address}, nil
}

// Name returns the link description
func (u *UDP) Name() string {
	return "udp:" + u.addr
}

// Connect resolves the address and opens the socket
func (u *UDP) Connect(ctx context.Context) bool {

	u.connMu.Lock()
	defer u.connMu.Unlock()

	if u.Connected() {
		return true
	}

	udpAddr, err := net.ResolveUDPAddr("udp", u.addr)

	if err != nil {
		u.l.Error("failed to resolve address", "addr", u.addr, "err", err)
		return false
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)

	if err != nil {
		u.l.Error("failed to dial", "addr", u.addr, "err", err)
		return false
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()

	u.l.Info("udp socket opened", "addr", u.addr)

	return true
}

// Send writes the datagram
func (u *UDP) Send(ch wire.Channel, value byte) bool {

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return false
	}

	u.conn.SetWriteDeadline(time.Now().Add(publishTimeout))

	if _, err := u.conn.Write([]byte{byte(ch), value}); err != nil {
		u.l.Warn("write failed", "channel", ch.String(), "err", err)
		return false
	}

	return true
}

// Connected returns true while the socket is open
func (u *UDP) Connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

// Disconnect closes the socket
func (u *UDP) Disconnect() {

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return
	}

	u.conn.Close()
	u.conn = nil
}
