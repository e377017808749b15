package wire

import (
	"sort"
	"time"
)

// DefaultInterval is the minimum time between writes to one channel (4 Hz)
const DefaultInterval = 250 * time.Millisecond

// slot holds the dispatch state of a single channel
type slot struct {
	pending    byte
	hasPending bool
	sent       byte
	hasSent    bool
	sentAt     time.Time
}

// Limiter applies change suppression and a per channel minimum send interval
// to quantized commands.  Only the latest offered value of a channel is kept,
// intermediate values between send slots are dropped.  It is owned by the
// control loop and is not safe for concurrent use.
type Limiter struct {
	interval time.Duration
	slots    map[Channel]*slot
}

// NewLimiter returns a limiter with the given minimum send interval per
// channel
func NewLimiter(interval time.Duration) *Limiter {

	if interval < 0 {
		interval = 0
	}

	return &Limiter{
		interval: interval,
		slots:    make(map[Channel]*slot),
	}
}

// Interval returns the minimum send interval
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

func (l *Limiter) slot(ch Channel) *slot {

	s, ok := l.slots[ch]

	if !ok {
		s = &slot{}
		l.slots[ch] = s
	}

	return s
}

// Offer records the latest value for a channel, replacing any value not yet
// sent
func (l *Limiter) Offer(cmd Command) {
	s := l.slot(cmd.Channel)
	s.pending = cmd.Value
	s.hasPending = true
}

// OfferAll offers every command
func (l *Limiter) OfferAll(cmds []Command) {
	for _, c := range cmds {
		l.Offer(c)
	}
}

// Due returns the commands that should be dispatched now, those whose pending
// value differs from the last successfully sent value and whose send interval
// has elapsed.  Commands are ordered by channel.
func (l *Limiter) Due(now time.Time) []Command {

	var due []Command

	for ch, s := range l.slots {

		if !s.hasPending {
			continue
		}

		if s.hasSent && s.sent == s.pending {
			continue
		}

		if s.hasSent && now.Sub(s.sentAt) < l.interval {
			continue
		}

		due = append(due, Command{Channel: ch, Value: s.pending})
	}

	sortCommands(due)
	return due
}

// Pending returns the latest offered value of every channel regardless of
// change suppression and the send interval.  It is used to force a final
// command on shutdown.
func (l *Limiter) Pending() []Command {

	var cmds []Command

	for ch, s := range l.slots {
		if s.hasPending {
			cmds = append(cmds, Command{Channel: ch, Value: s.pending})
		}
	}

	sortCommands(cmds)
	return cmds
}

// MarkSent records a successful dispatch.  Failed sends must not be marked so
// they are retried on the next tick.
func (l *Limiter) MarkSent(cmd Command, now time.Time) {
	s := l.slot(cmd.Channel)
	s.sent = cmd.Value
	s.hasSent = true
	s.sentAt = now
}

// LastSent returns the last successfully dispatched value of a channel
func (l *Limiter) LastSent(ch Channel) (byte, bool) {

	s, ok := l.slots[ch]

	if !ok || !s.hasSent {
		return 0, false
	}

	return s.sent, true
}

// Reset forgets every sent value so the next Due returns all pending
// commands, used after the link reconnects
func (l *Limiter) Reset() {
	for _, s := range l.slots {
		s.hasSent = false
		s.sentAt = time.Time{}
	}
}

func sortCommands(cmds []Command) {
	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].Channel < cmds[j].Channel
	})
}
