package transport

import (
	"context"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/wire"
	"sort"
	"sync"
	"time"
)

// retryInterval is how often failed writes are retried by Async
const retryInterval = 100 * time.Millisecond

// Async wraps an adapter whose writes may block so that Send never stalls
// the caller.  Each channel holds only its latest value, a newer value
// replaces one not yet written.  A single goroutine performs the writes.
type Async struct {
	Adapter
	l hclog.Logger

	mu      sync.Mutex
	pending map[wire.Channel]byte
	notify  chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	closed  bool
	// busy is set while the writer holds values taken from pending
	busy    bool

	// dropped counts values replaced before they were written
	dropped uint64
}

// NewAsync wraps the adapter and starts the writer goroutine
func NewAsync(a Adapter, l hclog.Logger) *Async {

	if l == nil {
		l = hclog.NewNullLogger()
	}

	as := &Async{
		Adapter: a,
		l:       l,
		pending: make(map[wire.Channel]byte),
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}

	as.wg.Add(1)
	go as.run()

	return as
}

// Name returns the wrapped link description
func (a *Async) Name() string {
	return a.Adapter.Name() + " (async)"
}

// Send queues the latest value for the channel and returns immediately.  It
// reports false if the underlying link is down.
func (a *Async) Send(ch wire.Channel, value byte) bool {

	if !a.Adapter.Connected() {
		return false
	}

	a.mu.Lock()

	if a.closed {
		a.mu.Unlock()
		return false
	}

	if _, ok := a.pending[ch]; ok {
		a.dropped++
	}

	a.pending[ch] = value
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}

	return true
}

// Dropped returns how many queued values were replaced before being written
func (a *Async) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Flush waits until every queued value has been written or the context is
// done
func (a *Async) Flush(ctx context.Context) bool {

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for {
		a.mu.Lock()
		idle := len(a.pending) == 0 && !a.busy
		a.mu.Unlock()

		if idle {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
		}
	}
}

// Disconnect stops the writer goroutine and disconnects the wrapped adapter.
// Values still queued are discarded.
func (a *Async) Disconnect() {

	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()

		close(a.stop)
		a.wg.Wait()
	})

	a.Adapter.Disconnect()
}

func (a *Async) run() {

	defer a.wg.Done()

	retry := time.NewTicker(retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-a.notify:
		case <-retry.C:
		}

		a.writePending()
	}
}

// writePending takes the queued values and writes them in channel order.
// Values that fail are put back unless a newer value arrived meanwhile.
func (a *Async) writePending() {

	a.mu.Lock()

	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}

	cmds := make([]wire.Command, 0, len(a.pending))

	for ch, v := range a.pending {
		cmds = append(cmds, wire.Command{Channel: ch, Value: v})
	}

	a.pending = make(map[wire.Channel]byte)
	a.busy = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].Channel < cmds[j].Channel
	})

	for _, c := range cmds {

		if a.Adapter.Send(c.Channel, c.Value) {
			continue
		}

		a.l.Debug("write failed, will retry", "command", c.String())

		a.mu.Lock()
		if _, newer := a.pending[c.Channel]; !newer && !a.closed {
			a.pending[c.Channel] = c.Value
		}
		a.mu.Unlock()
	}
}
